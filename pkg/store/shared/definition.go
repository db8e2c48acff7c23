package shared

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/smilemakc/mbflow/pkg/dag"
	"github.com/smilemakc/mbflow/pkg/task"
)

// nativeNode is the wire shape of one node inside a native-shape definition.
type nativeNode struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Params    map[string]any `json:"params"`
	DependsOn []string       `json:"depends_on"`
}

type nativeDefinition struct {
	Nodes []nativeNode `json:"nodes"`
}

type legacyStep struct {
	Type string         `json:"type"`
	Args map[string]any `json:"args"`
}

type legacyDefinition struct {
	Steps []legacyStep `json:"steps"`
}

// legacyTypeCanon is the fixed display-name-to-type canonicalisation table.
var legacyTypeCanon = map[string]task.Type{
	"HTTPS GET Request": "http_get",
	"Validate CSV File": "validate_csv",
	"Simple Transform":  "transform_simple",
	"Save to Database":  "save_db",
	"Mock Notification": "notify_mock",
}

// ParseDefinition decodes a definition JSON string (native or legacy shape)
// into a dag.Definition. name/id come from the owning SharedWorkflowRow.
func ParseDefinition(name, id, definitionJSON string) (dag.Definition, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(definitionJSON), &raw); err != nil {
		return dag.Definition{}, fmt.Errorf("parse definition json: %w", err)
	}

	if _, ok := raw["nodes"]; ok {
		return parseNative(name, id, raw["nodes"])
	}
	if _, ok := raw["steps"]; ok {
		return parseLegacy(name, id, raw["steps"])
	}
	return dag.Definition{}, fmt.Errorf("definition has neither nodes nor steps")
}

func parseNative(name, id string, nodesJSON json.RawMessage) (dag.Definition, error) {
	var nodes []nativeNode
	if err := json.Unmarshal(nodesJSON, &nodes); err != nil {
		return dag.Definition{}, fmt.Errorf("parse native nodes: %w", err)
	}

	def := dag.Definition{Name: name, ID: id, Nodes: make([]dag.Node, 0, len(nodes))}
	for _, n := range nodes {
		def.Nodes = append(def.Nodes, dag.Node{
			ID:        n.ID,
			Type:      task.Type(n.Type),
			Params:    task.Params(n.Params),
			DependsOn: n.DependsOn,
		})
	}
	return def, nil
}

func parseLegacy(name, id string, stepsJSON json.RawMessage) (dag.Definition, error) {
	var steps []legacyStep
	if err := json.Unmarshal(stepsJSON, &steps); err != nil {
		return dag.Definition{}, fmt.Errorf("parse legacy steps: %w", err)
	}

	def := dag.Definition{Name: name, ID: id, Nodes: make([]dag.Node, 0, len(steps))}
	for i, step := range steps {
		nodeID := fmt.Sprintf("step_%d", i)
		var dependsOn []string
		if i > 0 {
			dependsOn = []string{fmt.Sprintf("step_%d", i-1)}
		}
		if !IsKnownLegacyType(step.Type) {
			slog.Default().Warn("unknown legacy step type, using canonicalised name", "step_type", step.Type, "node_id", nodeID)
		}
		def.Nodes = append(def.Nodes, dag.Node{
			ID:        nodeID,
			Type:      canonicaliseLegacyType(step.Type),
			Params:    task.Params(step.Args),
			DependsOn: dependsOn,
		})
	}
	return def, nil
}

// canonicaliseLegacyType maps a legacy display name to a task type via the
// fixed table; unknown names are lowercased with spaces turned to
// underscores (parseLegacy logs a warning for those).
func canonicaliseLegacyType(displayName string) task.Type {
	if t, ok := legacyTypeCanon[displayName]; ok {
		return t
	}
	return task.Type(strings.ReplaceAll(strings.ToLower(displayName), " ", "_"))
}

// IsKnownLegacyType reports whether displayName has a canonicalisation
// table entry, so callers can decide whether to log the fallback warning.
func IsKnownLegacyType(displayName string) bool {
	_, ok := legacyTypeCanon[displayName]
	return ok
}
