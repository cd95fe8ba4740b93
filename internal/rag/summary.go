package rag

import "sort"

// ChatbotSummary is the read-only projection used when listing chatbots.
type ChatbotSummary struct {
	ShareID     string `json:"shareId"`
	Name        string `json:"name"`
	OwnerEmail  string `json:"ownerEmail"`
	OwnerName   string `json:"ownerName"`
	PreviewText string `json:"previewText"`
	ChunkCount  int    `json:"chunkCount"`
}

// Summarize groups records by share id. The preview comes from the lowest
// chunk index, earliest record first on ties. Output is sorted by share id.
func Summarize(records []VectorRecord) []ChatbotSummary {
	type group struct {
		summary ChatbotSummary
		first   Metadata
	}
	groups := make(map[string]*group)
	for _, rec := range records {
		md := rec.Metadata
		g, ok := groups[md.ShareID]
		if !ok {
			g = &group{first: md}
			groups[md.ShareID] = g
		} else if md.ChunkIndex < g.first.ChunkIndex ||
			(md.ChunkIndex == g.first.ChunkIndex && md.Timestamp.Before(g.first.Timestamp)) {
			g.first = md
		}
		g.summary.ChunkCount++
	}

	out := make([]ChatbotSummary, 0, len(groups))
	for shareID, g := range groups {
		out = append(out, ChatbotSummary{
			ShareID:     shareID,
			Name:        g.first.ChatbotName,
			OwnerEmail:  g.first.UserEmail,
			OwnerName:   g.first.UserName,
			PreviewText: g.first.Text,
			ChunkCount:  g.summary.ChunkCount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShareID < out[j].ShareID })
	return out
}
