package dynamo

import (
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// strKey builds a DynamoDB primary key map with a single string attribute.
func strKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

// updateExpr is a SET expression with its placeholder maps.
type updateExpr struct {
	Expr   string
	Names  map[string]string
	Values map[string]types.AttributeValue
}

// buildUpdateExpr converts a map of field->value into a DynamoDB SET expression.
// Fields are emitted in sorted order so the expression is deterministic.
func buildUpdateExpr(updates map[string]interface{}) (updateExpr, error) {
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return updateExpr{}, fmt.Errorf("no fields to update")
	}
	sort.Strings(keys)

	ue := updateExpr{
		Expr:   "SET ",
		Names:  make(map[string]string, len(keys)),
		Values: make(map[string]types.AttributeValue, len(keys)),
	}
	for i, k := range keys {
		nameKey := fmt.Sprintf("#f%d", i)
		valueKey := fmt.Sprintf(":v%d", i)
		av, err := attributevalue.Marshal(updates[k])
		if err != nil {
			return updateExpr{}, fmt.Errorf("marshal field %s: %w", k, err)
		}
		ue.Names[nameKey] = k
		ue.Values[valueKey] = av
		if i > 0 {
			ue.Expr += ", "
		}
		ue.Expr += fmt.Sprintf("%s = %s", nameKey, valueKey)
	}
	return ue, nil
}

// bumpRevision appends an atomic revision increment to ue.
func (ue *updateExpr) bumpRevision() {
	ue.Expr += " ADD #rev :one"
	ue.Names["#rev"] = fieldRevision
	ue.Values[":one"] = &types.AttributeValueMemberN{Value: "1"}
}
