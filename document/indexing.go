package document

import (
	"context"

	"github.com/ceyewan/kmis/breaker"
	"github.com/ceyewan/kmis/clog"
	"github.com/ceyewan/kmis/docai"
)

// index 通过 Guard 提交文档并持久化结果。
//
// 瞬时错误（含熔断）记为 not_processed 等待重新提交，永久错误记为 failed。
// 返回的 error 只来自本地持久化。
func (s *Service) index(ctx context.Context, doc *Document) error {
	out, err := breaker.Call(ctx, s.guard, func(ctx context.Context) (*docai.IndexResult, error) {
		return s.client.IndexDocument(ctx, indexRequest(doc))
	})
	doc.ProcessingAttempts++

	if cerr := callError(out.Err, err); cerr != nil {
		if cerr.Permanent() {
			doc.Status = StatusFailed
		} else {
			doc.Status = StatusNotProcessed
		}
		doc.ProcessingError = cerr.Error()
		s.logger.WarnContext(ctx, "document not indexed",
			clog.String("document_id", doc.ID),
			clog.String("status", string(doc.Status)),
			clog.String("kind", cerr.Kind.String()),
			clog.Int("attempts", doc.ProcessingAttempts))
	} else {
		s.applyIndexResult(doc, out.Result)
	}

	return s.persistProcessing(ctx, doc)
}

// refresh 查询检索服务中处理中的文档。
//
// 对方找不到该文档时清除 ExternalID 并转为 not_processed 重新提交；其他错误保持原状态。
func (s *Service) refresh(ctx context.Context, doc *Document) error {
	out, err := breaker.Call(ctx, s.guard, func(ctx context.Context) (*docai.IndexResult, error) {
		return s.client.GetDocument(ctx, doc.ExternalID)
	})

	if cerr := callError(out.Err, err); cerr != nil {
		if cerr.Kind != breaker.KindDocumentNotFound {
			return nil
		}
		s.logger.WarnContext(ctx, "vendor lost document, resubmitting",
			clog.String("document_id", doc.ID), clog.String("external_id", doc.ExternalID))
		doc.ExternalID = ""
		doc.Status = StatusNotProcessed
		doc.ProcessingError = cerr.Error()
	} else {
		s.applyIndexResult(doc, out.Result)
		if doc.Status == StatusProcessing {
			return nil
		}
	}

	return s.persistProcessing(ctx, doc)
}

func (s *Service) applyIndexResult(doc *Document, res *docai.IndexResult) {
	doc.ExternalID = res.ExternalID
	switch res.Status {
	case docai.IndexStatusFailed:
		doc.Status = StatusFailed
		doc.ProcessingError = "rejected by document service"
	case docai.IndexStatusPending:
		doc.Status = StatusProcessing
		doc.ProcessingError = ""
	default:
		now := s.now()
		doc.Status = StatusIndexed
		doc.ProcessingError = ""
		doc.IndexedAt = &now
	}
}

// persistProcessing 写入处理结果，调用方取消后仍会落库
func (s *Service) persistProcessing(ctx context.Context, doc *Document) error {
	doc.UpdatedAt = s.now()
	if err := s.repo.Update(context.WithoutCancel(ctx), doc); err != nil {
		return err
	}
	s.metrics.indexed(ctx, doc.Status)
	s.invalidateSearch()
	return nil
}

func indexRequest(doc *Document) docai.IndexRequest {
	text := doc.Content
	if doc.Description != "" {
		text = doc.Description + "\n\n" + doc.Content
	}
	return docai.IndexRequest{
		DocumentID: doc.ID,
		Title:      doc.Title,
		Content:    text,
		MimeType:   doc.MimeType,
		Tags:       doc.Tags,
		Metadata: map[string]string{
			"unit_id":    doc.UnitID,
			"owner_id":   doc.OwnerID,
			"visibility": string(doc.Visibility),
		},
	}
}
