// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/citation-manager/internal/agent"
	"github.com/pdiddy/citation-manager/internal/ltm"
	"github.com/pdiddy/citation-manager/pkg/types"
)

// params exposes the three parameter scopes a caller may use: the task's
// parameters, its agent_specific_data, and that object's payload. Each
// route reads a parameter from the scopes in its own order.
type params struct {
	task    map[string]any
	agent   map[string]any
	payload map[string]any
}

func readParams(env types.TaskEnvelope) params {
	p := params{task: env.Task.Parameters}
	if p.task == nil {
		p.task = map[string]any{}
	}
	p.agent, _ = p.task["agent_specific_data"].(map[string]any)
	if p.agent == nil {
		p.agent = map[string]any{}
	}
	p.payload, _ = p.agent["payload"].(map[string]any)
	if p.payload == nil {
		p.payload = map[string]any{}
	}
	return p
}

// agentFirst orders scopes agent data, payload, task parameters.
func (p params) agentFirst() []map[string]any {
	return []map[string]any{p.agent, p.payload, p.task}
}

// taskFirst orders scopes task parameters, agent data, payload.
func (p params) taskFirst() []map[string]any {
	return []map[string]any{p.task, p.agent, p.payload}
}

// firstSet returns the first value for key that is not empty, zero, or
// false.
func firstSet(key string, scopes []map[string]any) any {
	for _, s := range scopes {
		if v, ok := s[key]; ok && truthy(v) {
			return v
		}
	}
	return nil
}

// firstPresent returns the first non-null value for key.
func firstPresent(key string, scopes []map[string]any) any {
	for _, s := range scopes {
		if v, ok := s[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case json.Number:
		return t.String() != "0"
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	}
	return true
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return fmt.Sprint(v)
}

// boolOf coerces JSON booleans, numbers, and the usual string spellings.
func boolOf(v any, def bool) bool {
	switch t := v.(type) {
	case nil:
		return def
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(strings.ToLower(t)))
		if err != nil {
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "yes", "on":
				return true
			case "no", "off", "":
				return false
			}
			return def
		}
		return b
	}
	return truthy(v)
}

func intOf(v any, def int) (int, error) {
	switch t := v.(type) {
	case nil:
		return def, nil
	case float64:
		return int(t), nil
	case json.Number:
		n, err := t.Int64()
		return int(n), err
	case string:
		if strings.TrimSpace(t) == "" {
			return def, nil
		}
		return strconv.Atoi(strings.TrimSpace(t))
	}
	return 0, fmt.Errorf("not an integer: %v", v)
}

func mapOf(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func listOf(v any) []any {
	l, _ := v.([]any)
	return l
}

// timeLayouts are the accepted since/until formats.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func timeOf(v any) (time.Time, error) {
	s := stringOf(v)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

func (p params) process() agent.ProcessParams {
	rawText := stringOf(firstSet("raw_text", p.agentFirst()))
	if rawText == "" {
		rawText = stringOf(p.task["request"])
	}
	return agent.ProcessParams{
		Style:      stringOf(firstSet("style", p.agentFirst())),
		SourceType: stringOf(firstSet("source_type", p.agentFirst())),
		RawText:    rawText,
		Metadata:   mapOf(firstSet("metadata", p.agentFirst())),
		IncludeDOI: boolOf(firstPresent("includeDOI", p.taskFirst()), true),
		Save:       boolOf(firstPresent("save", p.taskFirst()), false),
		SaveAll:    boolOf(firstPresent("save_all", p.taskFirst()), false),
		UserID:     stringOf(firstSet("user_id", p.taskFirst())),
		LLMParse:   boolOf(firstSet("llm_parse", p.agentFirst()), false),
	}
}

func (p params) bibliography() agent.BibliographyParams {
	return agent.BibliographyParams{
		Items:            listOf(p.task["items"]),
		Style:            stringOf(p.task["style"]),
		RemoveDuplicates: boolOf(p.task["remove_duplicates"], true),
		Save:             boolOf(p.task["save"], false),
		SaveAll:          boolOf(p.task["save_all"], false),
		UserID:           stringOf(p.task["user_id"]),
	}
}

func (p params) query() (ltm.Query, error) {
	taskPayload := []map[string]any{p.task, p.payload}

	limit, err := intOf(firstSet("limit", taskPayload), 50)
	if err != nil {
		return ltm.Query{}, fmt.Errorf("limit: %w", err)
	}
	since, err := timeOf(firstSet("since", taskPayload))
	if err != nil {
		return ltm.Query{}, fmt.Errorf("since: %w", err)
	}
	until, err := timeOf(firstSet("until", taskPayload))
	if err != nil {
		return ltm.Query{}, fmt.Errorf("until: %w", err)
	}
	return ltm.Query{
		UserID: stringOf(firstSet("user_id", p.taskFirst())),
		Text:   stringOf(firstSet("query", taskPayload)),
		Style:  stringOf(firstSet("style", taskPayload)),
		Since:  since,
		Until:  until,
		Limit:  limit,
	}, nil
}
