package dynamo

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpdateExpr_SingleField(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{"category": "music"})
	require.NoError(t, err)
	assert.Equal(t, "SET #f0 = :v0", ue.Expr)
	assert.Equal(t, map[string]string{"#f0": "category"}, ue.Names)
	_, ok := ue.Values[":v0"]
	assert.True(t, ok)
}

func TestBuildUpdateExpr_MultipleFields_Deterministic(t *testing.T) {
	updates := map[string]interface{}{
		"title":      map[string]string{"en": "Talk"},
		"category":   "music",
		"start_date": time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
	}
	ue1, err := buildUpdateExpr(updates)
	require.NoError(t, err)
	ue2, err := buildUpdateExpr(updates)
	require.NoError(t, err)

	assert.Equal(t, ue1.Expr, ue2.Expr)
	assert.Equal(t, "category", ue1.Names["#f0"])
	assert.Equal(t, "start_date", ue1.Names["#f1"])
	assert.Equal(t, "title", ue1.Names["#f2"])
	assert.Equal(t, "SET #f0 = :v0, #f1 = :v1, #f2 = :v2", ue1.Expr)
}

func TestBuildUpdateExpr_ValuesMarshalledCorrectly(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{"registrations": 3})
	require.NoError(t, err)
	av, ok := ue.Values[":v0"]
	require.True(t, ok)
	n, isNum := av.(*types.AttributeValueMemberN)
	require.True(t, isNum)
	assert.Equal(t, "3", n.Value)
}

func TestBuildUpdateExpr_EmptyMap_ReturnsError(t *testing.T) {
	_, err := buildUpdateExpr(map[string]interface{}{})
	assert.ErrorContains(t, err, "no fields to update")
}

func TestBumpRevision(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{"category": "music"})
	require.NoError(t, err)
	ue.bumpRevision()
	assert.Equal(t, "SET #f0 = :v0 ADD #rev :one", ue.Expr)
	assert.Equal(t, "revision", ue.Names["#rev"])
}
