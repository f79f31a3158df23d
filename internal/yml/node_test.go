package yml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNode_LookupAndExpand(t *testing.T) {
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("workflows:\n  - id: a\n    name: ${x}\ncount: 3\n"), &node))
	root := Root(&node)

	workflows := root.Lookup("Workflows")
	require.NotNil(t, workflows)
	assert.True(t, workflows.IsSequence())
	assert.Nil(t, root.Lookup("missing"))

	root.Expand(func(s string) string {
		if s == "${x}" {
			return "expanded"
		}
		return s
	})
	var decoded struct {
		Workflows []struct{ ID, Name string }
		Count     int
	}
	require.NoError(t, root.Decode(&decoded))
	assert.Equal(t, "expanded", decoded.Workflows[0].Name)
	assert.Equal(t, 3, decoded.Count)

	var keys []string
	require.NoError(t, root.Pairs(func(key string, _ *Node) error {
		keys = append(keys, key)
		return nil
	}))
	assert.Equal(t, []string{"workflows", "count"}, keys)
}
