package room

// HiddenPartition separates per-player secret state from the broadcast
// projection. Secrets live only here, keyed by uid; the public side exposes
// a derived size (hand count) recomputed on every mutation, so observers can
// never read a stale count. There is no serialization path from the secret
// map to a broadcast payload.
type HiddenPartition struct {
	secrets map[string]any
	sizes   map[string]int
	sizeOf  func(secret any) int
}

// NewHiddenPartition builds a partition whose public projection is sizeOf
// applied to each secret.
func NewHiddenPartition(sizeOf func(secret any) int) *HiddenPartition {
	return &HiddenPartition{
		secrets: make(map[string]any),
		sizes:   make(map[string]int),
		sizeOf:  sizeOf,
	}
}

// Set stores uid's secret and immediately recomputes its public size.
func (h *HiddenPartition) Set(uid string, secret any) {
	h.secrets[uid] = secret
	h.sizes[uid] = h.sizeOf(secret)
}

// Get returns uid's secret for targeted delivery only.
func (h *HiddenPartition) Get(uid string) (any, bool) {
	s, ok := h.secrets[uid]
	return s, ok
}

// Delete drops uid's secret and its projection.
func (h *HiddenPartition) Delete(uid string) {
	delete(h.secrets, uid)
	delete(h.sizes, uid)
}

// Size returns the public projection for one uid.
func (h *HiddenPartition) Size(uid string) int {
	return h.sizes[uid]
}

// Sizes returns a copy of the public projection map, safe to embed in a
// broadcast snapshot.
func (h *HiddenPartition) Sizes() map[string]int {
	out := make(map[string]int, len(h.sizes))
	for uid, n := range h.sizes {
		out[uid] = n
	}
	return out
}

// Owners lists uids with a stored secret.
func (h *HiddenPartition) Owners() []string {
	out := make([]string, 0, len(h.secrets))
	for uid := range h.secrets {
		out = append(out, uid)
	}
	return out
}
