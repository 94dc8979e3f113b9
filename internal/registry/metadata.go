package registry

import (
	"slices"

	"github.com/Masterminds/semver/v3"
)

// Metadata is the subset of a registry packument packd needs.
type Metadata struct {
	Name     string                     `json:"name"`
	DistTags map[string]string          `json:"dist-tags"`
	Versions map[string]VersionManifest `json:"versions"`
}

// VersionManifest describes one published version.
type VersionManifest struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Deprecated string `json:"deprecated,omitempty"`
}

// HasVersions reports whether the metadata lists any published version.
func (m *Metadata) HasVersions() bool {
	return m != nil && len(m.Versions) > 0
}

// SortedVersions returns the listed versions that parse as semver, ascending.
func (m *Metadata) SortedVersions() []*semver.Version {
	out := make([]*semver.Version, 0, len(m.Versions))
	for raw := range m.Versions {
		v, err := semver.StrictNewVersion(raw)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b *semver.Version) int { return a.Compare(b) })
	return out
}

// FindVersion resolves spec against the metadata. An empty spec means
// "latest". The order is: exact version present in the listing, then
// dist-tag, then the highest listed version satisfying spec as a range.
// It returns false when nothing matches.
func FindVersion(meta *Metadata, spec string) (string, bool) {
	if !meta.HasVersions() {
		return "", false
	}
	if spec == "" {
		spec = "latest"
	}

	if _, err := semver.StrictNewVersion(spec); err == nil {
		if _, ok := meta.Versions[spec]; ok {
			return spec, true
		}
	}

	if target, ok := meta.DistTags[spec]; ok {
		if _, err := semver.StrictNewVersion(target); err != nil {
			return "", false
		}
		return target, true
	}

	constraint, err := semver.NewConstraint(spec)
	if err != nil {
		return "", false
	}
	versions := meta.SortedVersions()
	for i := len(versions) - 1; i >= 0; i-- {
		if constraint.Check(versions[i]) {
			return versions[i].Original(), true
		}
	}
	return "", false
}
