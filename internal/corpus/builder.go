// Package corpus converts tenant entity snapshots into normalized text:
// one blob per entity for the embedding indexer, and one aggregate markdown
// document per tenant for the managed assistant's file bundle.
//
// Both outputs are pure functions of the provided snapshots and fully
// deterministic (sorted attribute keys, ordered sections), so equal entity
// state always yields byte-equal text. Idempotence checks rely on this.
package corpus

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prodexhq/prodex/pkg/types"
)

// BuildEntityText renders one entity as a normalized text blob suitable for
// embedding. The layout is stable: name, type, description, then attributes
// in sorted key order.
func BuildEntityText(e *types.Entity) string {
	if e == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", entityLabel(e.Type), e.Name)
	if e.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", e.Description)
	}
	for _, k := range sortedKeys(e.Attributes) {
		fmt.Fprintf(&b, "%s: %s\n", k, e.Attributes[k])
	}

	return strings.TrimRight(b.String(), "\n")
}

// BuildCorpus renders all of a tenant's entities as one aggregate markdown
// document for upload to the assistants provider. Entities are grouped by
// type and ordered by id inside each group.
func BuildCorpus(tenantID string, entities []types.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Product Knowledge Base (%s)\n", tenantID)

	grouped := map[types.EntityType][]types.Entity{}
	for _, e := range entities {
		grouped[e.Type] = append(grouped[e.Type], e)
	}

	groupTypes := make([]string, 0, len(grouped))
	for t := range grouped {
		groupTypes = append(groupTypes, string(t))
	}
	sort.Strings(groupTypes)

	for _, t := range groupTypes {
		group := grouped[types.EntityType(t)]
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })

		fmt.Fprintf(&b, "\n## %ss\n", entityLabel(types.EntityType(t)))
		for i := range group {
			fmt.Fprintf(&b, "\n### %s\n%s\n", group[i].Name, BuildEntityText(&group[i]))
		}
	}

	return b.String()
}

// entityLabel maps an entity type to its human-readable section label.
func entityLabel(t types.EntityType) string {
	switch t {
	case types.EntityFeature:
		return "Feature"
	case types.EntityRelease:
		return "Release"
	case types.EntityRequirement:
		return "Requirement"
	case types.EntityPage:
		return "Page"
	default:
		return "Entity"
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
