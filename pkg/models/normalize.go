package models

import "sort"

// Normalization produces the canonical form used for cross-backend comparison.
// The two backends legitimately disagree on ordering (the key-blob store keeps
// todos newest-first inside the document, the relational store orders by query)
// and on the representation of absent optionals (missing JSON field vs NULL
// column vs empty string). Canonicalizing both sides before comparing keeps the
// parity checker free of per-backend special cases:
//
//   - slices get deterministic sort orders independent of how either
//     backend happens to store them; session IDs are cleared outright since
//     each backend generates its own under dual write
//   - empty optional strings, zero optional numbers, and empty sub-slices all
//     collapse to nil
//   - TotalFocusMs is removed from the comparable todo; it is a derived
//     aggregate checked separately so a credit drift is reported as its own
//     mismatch category rather than hiding inside "todos"
//
// Inputs are never mutated; every function works on copies.

// NormalizeTodos returns todos sorted newest-first (CreatedAt descending, ID
// ascending on ties) with each todo's logs sorted oldest-first.
func NormalizeTodos(todos []Todo) []Todo {
	if len(todos) == 0 {
		return nil
	}
	out := make([]Todo, len(todos))
	for i, t := range todos {
		out[i] = normalizeTodo(t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func normalizeTodo(t Todo) Todo {
	t.Detail = dropEmpty(t.Detail)
	t.Deadline = dropZero(t.Deadline)
	t.ArchivedAt = dropZero(t.ArchivedAt)
	t.ProjectID = dropEmpty(t.ProjectID)
	t.TotalFocusMs = nil
	if len(t.Logs) == 0 {
		t.Logs = nil
	} else {
		logs := make([]TaskLog, len(t.Logs))
		copy(logs, t.Logs)
		sort.SliceStable(logs, func(i, j int) bool {
			if logs[i].CreatedAt != logs[j].CreatedAt {
				return logs[i].CreatedAt < logs[j].CreatedAt
			}
			return logs[i].ID < logs[j].ID
		})
		t.Logs = logs
	}
	return t
}

// NormalizeProjects returns projects sorted oldest-first with resources and
// attachments each sorted oldest-first.
func NormalizeProjects(projects []Project) []Project {
	if len(projects) == 0 {
		return nil
	}
	out := make([]Project, len(projects))
	for i, p := range projects {
		out[i] = normalizeProject(p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func normalizeProject(p Project) Project {
	p.Detail = dropEmpty(p.Detail)
	p.GithubRepo = dropEmpty(p.GithubRepo)
	p.ArchivedAt = dropZero(p.ArchivedAt)
	if len(p.Resources) == 0 {
		p.Resources = nil
	} else {
		res := make([]Resource, len(p.Resources))
		for i, r := range p.Resources {
			r.Label = dropEmpty(r.Label)
			res[i] = r
		}
		sort.SliceStable(res, func(i, j int) bool {
			if res[i].CreatedAt != res[j].CreatedAt {
				return res[i].CreatedAt < res[j].CreatedAt
			}
			return res[i].ID < res[j].ID
		})
		p.Resources = res
	}
	if len(p.Attachments) == 0 {
		p.Attachments = nil
	} else {
		atts := make([]ProjectAttachment, len(p.Attachments))
		for i, a := range p.Attachments {
			a.Key = dropEmpty(a.Key)
			a.ContentType = dropEmpty(a.ContentType)
			a.Size = dropZero(a.Size)
			atts[i] = a
		}
		sort.SliceStable(atts, func(i, j int) bool {
			if atts[i].CreatedAt != atts[j].CreatedAt {
				return atts[i].CreatedAt < atts[j].CreatedAt
			}
			return atts[i].ID < atts[j].ID
		})
		p.Attachments = atts
	}
	return p
}

// NormalizeSessions returns sessions sorted by StartedAt ascending, TaskID
// ascending on ties, with IDs cleared. Session identifiers are generated
// independently on each backend under dual write, so they carry no
// cross-backend meaning and must not count as drift.
func NormalizeSessions(sessions []FocusSession) []FocusSession {
	if len(sessions) == 0 {
		return nil
	}
	out := make([]FocusSession, len(sessions))
	for i, s := range sessions {
		s.ID = ""
		s.EndedAt = dropZero(s.EndedAt)
		if s.EndReason != nil && *s.EndReason == "" {
			s.EndReason = nil
		}
		out[i] = s
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt < out[j].StartedAt
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out
}

// NormalizePomodoroLogs returns logs sorted by CompletedAt ascending, TaskID
// ascending on ties.
func NormalizePomodoroLogs(logs []PomodoroLog) []PomodoroLog {
	if len(logs) == 0 {
		return nil
	}
	out := make([]PomodoroLog, len(logs))
	copy(out, logs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CompletedAt != out[j].CompletedAt {
			return out[i].CompletedAt < out[j].CompletedAt
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out
}

// NormalizeFocus canonicalizes the focus singleton. Absent stays nil.
func NormalizeFocus(focus *FocusState) *FocusState {
	if focus == nil {
		return nil
	}
	f := *focus
	f.PausedAt = dropZero(f.PausedAt)
	f.AccumulatedPauseMs = dropZero(f.AccumulatedPauseMs)
	if f.Pomodoro != nil {
		p := *f.Pomodoro
		p.PausedRemaining = dropZero(p.PausedRemaining)
		f.Pomodoro = &p
	}
	return &f
}

// NormalizeSettings fills defaults for absent settings and for individual
// zero-valued fields, matching what readers of either backend return.
func NormalizeSettings(settings *UserSettings) UserSettings {
	def := DefaultSettings()
	if settings == nil {
		return def
	}
	s := *settings
	if s.WorkMs == 0 {
		s.WorkMs = def.WorkMs
	}
	if s.ShortBreakMs == 0 {
		s.ShortBreakMs = def.ShortBreakMs
	}
	if s.LongBreakMs == 0 {
		s.LongBreakMs = def.LongBreakMs
	}
	if s.Theme == "" {
		s.Theme = def.Theme
	}
	return s
}

// TotalFocusMs sums the focus credit across todos. This is the derived
// aggregate the parity checker compares between backends.
func TotalFocusMs(todos []Todo) int64 {
	var sum int64
	for _, t := range todos {
		if t.TotalFocusMs != nil {
			sum += *t.TotalFocusMs
		}
	}
	return sum
}

func dropEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func dropZero(n *int64) *int64 {
	if n == nil || *n == 0 {
		return nil
	}
	return n
}
