package docstore

import (
	"context"
	"sort"
)

// ListAll returns every document in c, or an empty slice.
func ListAll(ctx context.Context, c Collection) ([]Document, error) {
	return c.Find(ctx, nil)
}

// InsertSchool inserts a school built from fields and returns its id.
func InsertSchool(ctx context.Context, c Collection, fields Document) (string, error) {
	return c.InsertOne(ctx, fields)
}

// UpdateTopics replaces the topics of every school called name.
func UpdateTopics(ctx context.Context, c Collection, name string, topics []string) (int, error) {
	if topics == nil {
		topics = []string{}
	}
	return c.UpdateMany(ctx, Filter{"name": name}, Update{Set: Document{"topics": topics}})
}

// SchoolsByTopic returns the schools whose topics include topic.
func SchoolsByTopic(ctx context.Context, c Collection, topic string) ([]Document, error) {
	return c.Find(ctx, Filter{"topics": topic})
}

// StudentScore is a student projected to its average topic score.
type StudentScore struct {
	ID           string   `json:"_id"`
	Name         string   `json:"name"`
	AverageScore *float64 `json:"averageScore"`
}

// TopStudents returns every student ordered by the average of
// topics[].score, highest first. Students without any numeric score have a
// nil average and sort last.
func TopStudents(ctx context.Context, c Collection) ([]StudentScore, error) {
	docs, err := c.Find(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make([]StudentScore, 0, len(docs))
	for _, doc := range docs {
		name, _ := doc["name"].(string)
		out = append(out, StudentScore{
			ID:           doc.ID(),
			Name:         name,
			AverageScore: averageScore(doc["topics"]),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].AverageScore, out[j].AverageScore
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})
	return out, nil
}

func averageScore(topics any) *float64 {
	arr, ok := topics.([]any)
	if !ok {
		return nil
	}
	var sum float64
	var n int
	for _, t := range arr {
		topic, ok := t.(map[string]any)
		if !ok {
			continue
		}
		score, ok := topic["score"].(float64)
		if !ok {
			continue
		}
		sum += score
		n++
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}
