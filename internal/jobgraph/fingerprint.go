package jobgraph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// DomainPlan versions the fingerprint scheme. Bump on any change to the
// canonical layout so old ledger rows cannot collide with new plans.
const DomainPlan = "callsheet/plan/v1"

// hashWithDomain computes SHA-256 over domain + 0x00 + data. The null
// separator keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes the content-addressed identity of the graph:
// equal fingerprints mean structurally identical plans (same jobs, same
// payloads, same edges). Planning is pure, so replanning an unchanged
// tree reproduces the fingerprint exactly; the submission ledger keys on
// this.
func (g *Graph) Fingerprint() (string, error) {
	jobs := make([]any, 0, len(g.jobs))
	for _, name := range g.sortedNames() {
		j := g.jobs[g.index[name]]
		payload := make(map[string]any, len(j.Payload))
		for k, v := range j.Payload {
			payload[k] = v
		}
		jobs = append(jobs, map[string]any{
			"name":       j.Name,
			"kind":       string(j.Kind),
			"entity":     j.Entity,
			"department": j.Department,
			"pool":       j.Pool,
			"priority":   j.Priority,
			"frames": map[string]any{
				"first": j.Frames.First,
				"last":  j.Frames.Last,
				"step":  j.Frames.Step,
			},
			"payload": payload,
		})
	}

	edges := make([]any, 0)
	for _, e := range g.Edges() {
		edges = append(edges, []any{e[0], e[1]})
	}

	canonical, err := marshalCanonical(map[string]any{
		"jobs":  jobs,
		"edges": edges,
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainPlan, canonical), nil
}

// MustFingerprint is Fingerprint for inputs known to be valid. Test use
// only.
func (g *Graph) MustFingerprint() string {
	fp, err := g.Fingerprint()
	if err != nil {
		panic(err)
	}
	return fp
}

// sortedNames orders job names bytewise. Names are ASCII identifiers, so
// byte order and UTF-16 order agree.
func (g *Graph) sortedNames() []string {
	names := make([]string, 0, len(g.jobs))
	for _, j := range g.jobs {
		names = append(names, j.Name)
	}
	sort.Strings(names)
	return names
}
