package config

import (
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2/unstable"
	"gopkg.in/yaml.v3"
)

const versionsKey = "versions"

// tomlVersionOrder returns version names in the order they first appear.
// Handles [versions.<name>] tables, inline tables under [versions], and
// dotted keys (versions.<name>.ref = ...).
func tomlVersionOrder(data []byte) ([]string, error) {
	var p unstable.Parser
	p.Reset(data)

	var (
		table []string
		names []string
		seen  = map[string]bool{}
	)
	add := func(path []string) {
		if len(path) < 2 || path[0] != versionsKey || seen[path[1]] {
			return
		}
		seen[path[1]] = true
		names = append(names, path[1])
	}

	for p.NextExpression() {
		e := p.Expression()
		switch e.Kind {
		case unstable.Table, unstable.ArrayTable:
			table = keyParts(e.Key())
			add(table)
		case unstable.KeyValue:
			path := append(append([]string(nil), table...), keyParts(e.Key())...)
			add(path)
		}
	}
	if err := p.Error(); err != nil {
		return nil, err
	}
	return names, nil
}

func keyParts(it unstable.Iterator) []string {
	var parts []string
	for it.Next() {
		parts = append(parts, string(it.Node().Data))
	}
	return parts
}

// yamlVersionOrder returns the keys of the top-level versions mapping in
// document order.
func yamlVersionOrder(data []byte) ([]string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, nil
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, nil
	}

	var names []string
	for i := 0; i+1 < len(top.Content); i += 2 {
		if top.Content[i].Value != versionsKey {
			continue
		}
		m := top.Content[i+1]
		if m.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(m.Content); j += 2 {
			names = append(names, m.Content[j].Value)
		}
	}
	return names, nil
}

// orderedVersions flattens the decoded map using order. Names missing from
// order (should not happen) follow in lexical order.
func orderedVersions(specs map[string]VersionSpec, order []string) []Version {
	versions := make([]Version, 0, len(specs))
	used := make(map[string]bool, len(specs))
	for _, name := range order {
		spec, ok := specs[name]
		if !ok || used[name] {
			continue
		}
		used[name] = true
		versions = append(versions, Version{Name: name, Ref: spec.Ref})
	}

	var rest []string
	for name := range specs {
		if !used[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		versions = append(versions, Version{Name: name, Ref: specs[name].Ref})
	}
	return versions
}

// SortedBySemver returns the versions with semver-parsable names first, in
// ascending version order, followed by the rest in configuration order.
func SortedBySemver(versions []Version) []Version {
	type parsed struct {
		v   Version
		ver *semver.Version
	}
	var withVer []parsed
	var other []Version
	for _, v := range versions {
		sv, err := semver.NewVersion(v.Name)
		if err != nil {
			other = append(other, v)
			continue
		}
		withVer = append(withVer, parsed{v: v, ver: sv})
	}

	sort.SliceStable(withVer, func(i, j int) bool {
		return withVer[i].ver.LessThan(withVer[j].ver)
	})

	out := make([]Version, 0, len(versions))
	for _, p := range withVer {
		out = append(out, p.v)
	}
	return append(out, other...)
}
