package app

import (
	"time"

	"prodplan/api/internal/store"
)

// Response shaping for the JSON surface. Store models stay tag-free; the views
// own the wire field names.

func headingView(h store.Heading) map[string]any {
	return map[string]any{
		"id":              h.ID,
		"accountId":       h.AccountID,
		"name":            h.Name,
		"families":        nonNilStrings(h.Families),
		"referenceUrl":    h.ReferenceURL,
		"workflowStage":   h.WorkflowStage,
		"status":          h.Status,
		"definition":      h.Definition,
		"aliases":         h.Aliases,
		"category":        h.Category,
		"companies":       h.Companies,
		"rankPoints":      h.RankPoints,
		"headingType":     h.HeadingType,
		"sourceStatus":    h.SourceStatus,
		"sourceTimestamp": h.SourceTimestamp,
		"updatedBy":       h.UpdatedBy,
		"createdAt":       timeView(h.CreatedAt),
		"updatedAt":       timeView(h.UpdatedAt),
	}
}

func headingViews(headings []store.Heading) []map[string]any {
	views := make([]map[string]any, 0, len(headings))
	for _, h := range headings {
		views = append(views, headingView(h))
	}
	return views
}

func snapshotViews(snapshots []store.Snapshot) []map[string]any {
	views := make([]map[string]any, 0, len(snapshots))
	for _, snap := range snapshots {
		views = append(views, map[string]any{
			"id":         snap.ID,
			"fileName":   snap.FileName,
			"isActive":   snap.IsActive,
			"uploadedBy": snap.UploadedBy,
			"createdAt":  timeView(snap.CreatedAt),
		})
	}
	return views
}

func snapshotItemViews(items []store.SnapshotItem) []map[string]any {
	views := make([]map[string]any, 0, len(items))
	for _, item := range items {
		views = append(views, map[string]any{
			"headingId":  item.HeadingID,
			"name":       item.Name,
			"rankPoints": item.RankPoints,
			"position":   item.Position,
		})
	}
	return views
}

func batchViews(batches []store.ImportBatch) []map[string]any {
	views := make([]map[string]any, 0, len(batches))
	for _, b := range batches {
		views = append(views, map[string]any{
			"id":            b.ID,
			"contextFamily": b.ContextFamily,
			"fileName":      b.FileName,
			"rowCount":      b.RowCount,
			"createdBy":     b.CreatedBy,
			"createdAt":     timeView(b.CreatedAt),
		})
	}
	return views
}

func pdmView(p store.Pdm, refs []store.PdmHeading) map[string]any {
	view := map[string]any{
		"id":                   p.ID,
		"accountId":            p.AccountID,
		"isCopro":              p.IsCopro,
		"url":                  p.URL,
		"companyTypes":         nonNilStrings(p.CompanyTypes),
		"description":          p.Description,
		"comment":              p.Comment,
		"wordCount":            p.WordCount,
		"uploaded":             p.Uploaded,
		"qcStatus":             p.QcStatus,
		"rectificationStatus":  p.RectificationStatus,
		"validationStatus":     p.ValidationStatus,
		"isQcEdited":           p.IsQcEdited,
		"isDescriptionUpdated": p.IsDescriptionUpdated,
		"createdBy":            p.CreatedBy,
		"createdAt":            timeView(p.CreatedAt),
		"updatedAt":            timeView(p.UpdatedAt),
	}
	if refs != nil {
		headings := make([]map[string]any, 0, len(refs))
		for _, ref := range refs {
			headings = append(headings, map[string]any{
				"headingId": ref.HeadingID,
				"sortOrder": ref.SortOrder,
			})
		}
		view["headings"] = headings
	}
	return view
}

func eventViews(events []store.PdmStatusEvent) []map[string]any {
	views := make([]map[string]any, 0, len(events))
	for _, e := range events {
		views = append(views, map[string]any{
			"id":        e.ID,
			"pdmId":     e.PdmID,
			"eventType": e.EventType,
			"from":      e.From,
			"to":        e.To,
			"actor":     e.Actor,
			"createdAt": timeView(e.CreatedAt),
		})
	}
	return views
}

func feedbackView(f store.QcFeedback) map[string]any {
	return map[string]any{
		"pdmId":              f.PdmID,
		"updatedDescription": f.UpdatedDescription,
		"comment":            f.Comment,
		"errorCategories":    nonNilStrings(f.Categories),
		"submittedBy":        f.SubmittedBy,
		"submittedAt":        timeView(f.SubmittedAt),
	}
}

func historyViews(entries []store.FeedbackHistoryEntry) []map[string]any {
	views := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		views = append(views, map[string]any{
			"id":                 entry.ID,
			"updatedDescription": entry.UpdatedDescription,
			"comment":            entry.Comment,
			"errorCategories":    nonNilStrings(entry.Categories),
			"submittedBy":        entry.SubmittedBy,
			"createdAt":          timeView(entry.CreatedAt),
		})
	}
	return views
}

func qcErrorView(report store.QcErrorReport) map[string]any {
	return map[string]any{
		"id":                  report.ID,
		"headingId":           report.HeadingID,
		"description":         report.Description,
		"rectificationStatus": report.RectificationStatus,
		"validationStatus":    report.ValidationStatus,
		"reportedBy":          report.ReportedBy,
		"createdAt":           timeView(report.CreatedAt),
		"updatedAt":           timeView(report.UpdatedAt),
	}
}

func activityViews(entries []store.ActivityEntry) []map[string]any {
	views := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		views = append(views, map[string]any{
			"action":     entry.Action,
			"details":    entry.Details,
			"actor":      entry.Actor,
			"entityType": entry.EntityType,
			"entityId":   entry.EntityID,
			"createdAt":  timeView(entry.CreatedAt),
		})
	}
	return views
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func timeView(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
