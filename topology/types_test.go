package topology

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ggolani/streamline/errors"
)

func TestParseParentType(t *testing.T) {
	for in, want := range map[string]ParentType{
		"SOURCE":    ParentSource,
		"processor": ParentProcessor,
		" Sink ":    ParentSink,
	} {
		got, err := ParseParentType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseParentType("EDGE")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.True(t, errors.Is(err, errors.ErrUnknownType))
}

func TestParentTypeCategory(t *testing.T) {
	assert.Equal(t, CategorySources, ParentSource.Category())
	assert.Equal(t, CategoryProcessors, ParentProcessor.Category())
	assert.Equal(t, CategorySinks, ParentSink.Category())
	assert.Equal(t, Category(""), ParentUnknown.Category())
}

func TestCategoryValid(t *testing.T) {
	for _, c := range Categories() {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, Category("topologies").Valid())
}

func TestParseSubtype(t *testing.T) {
	assert.Equal(t, SubtypeRule, ParseSubtype("rule"))
	assert.Equal(t, SubtypeBranch, ParseSubtype("BRANCH"))
	assert.Equal(t, SubtypeGeneric, ParseSubtype("KAFKA"))
	assert.Equal(t, SubtypeGeneric, ParseSubtype(""))

	assert.True(t, SubtypeWindow.IsRuleLike())
	assert.False(t, SubtypeJoin.IsRuleLike())
	assert.Equal(t, CategoryBranchRules, SubtypeBranch.ActionCategory())
	assert.Equal(t, Category(""), SubtypeSplit.ActionCategory())
}

func TestNewNode(t *testing.T) {
	n := NewNode(ParentProcessor, "RULE", "Rule", 42)
	assert.Equal(t, SubtypeRule, n.Subtype)
	assert.Equal(t, "Rule", n.TypeName)
	assert.Equal(t, 1, n.Parallelism)
	assert.Equal(t, int64(42), n.BundleID)
	assert.Equal(t, "styles/img/icon-rule.png", n.ImageURL)
	assert.False(t, n.Persisted())
	assert.Equal(t, CategoryProcessors, n.Category())
}

func TestNodeEncoding(t *testing.T) {
	n := &Node{ID: 5, ParentType: ParentSink, TypeName: "Hdfs", UIName: "HDFS", Parallelism: 2}

	b, err := json.Marshal(n)
	require.NoError(t, err)
	var back Node
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, *n, back)

	y, err := yaml.Marshal(n)
	require.NoError(t, err)
	assert.Contains(t, string(y), "parentType: SINK")
	assert.Contains(t, string(y), "uiname: HDFS")
}

func TestCapitalizeFirst(t *testing.T) {
	assert.Equal(t, "Kafka", CapitalizeFirst("KAFKA"))
	assert.Equal(t, "", CapitalizeFirst(""))
}
