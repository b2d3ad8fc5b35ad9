// Package resource はリソース閲覧とフィードバック追加のドメインロジックを提供する。
// リソースリポジトリサーバーのハンドラーから使用される。
package resource

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/rescat/internal/model"
	"github.com/hitoshi/rescat/internal/repository"
	"github.com/hitoshi/rescat/internal/security"
)

// FeedbackMetrics はフィードバック追加時に記録するメトリクスのインターフェース。
type FeedbackMetrics interface {
	RecordFeedbackCreated()
}

// ResourceService はリソース取得とフィードバック追加のサービス。
type ResourceService struct {
	repo      repository.ResourceRepository
	sanitizer security.ContentSanitizerService
	metrics   FeedbackMetrics // nilの場合は記録しない
	logger    *slog.Logger
	now       func() time.Time
}

// NewResourceService はResourceServiceの新しいインスタンスを生成する。
func NewResourceService(
	repo repository.ResourceRepository,
	sanitizer security.ContentSanitizerService,
	metrics FeedbackMetrics,
	logger *slog.Logger,
) *ResourceService {
	return &ResourceService{
		repo:      repo,
		sanitizer: sanitizer,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// ListResources は全リソースを作成順で返す。ページングは行わない。
func (s *ResourceService) ListResources(ctx context.Context) ([]model.Resource, error) {
	resources, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("リソース一覧の取得に失敗しました: %w", err)
	}
	return resources, nil
}

// GetResource は指定IDのリソースを返す。
// 存在しない場合はRESOURCE_NOT_FOUNDのAPIErrorを返す。
func (s *ResourceService) GetResource(ctx context.Context, resourceID string) (*model.Resource, error) {
	if strings.TrimSpace(resourceID) == "" {
		return nil, model.NewInvalidResourceIDError()
	}

	res, err := s.repo.FindByID(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("リソースの取得に失敗しました: %w", err)
	}
	if res == nil {
		return nil, model.NewResourceNotFoundError(resourceID)
	}
	return res, nil
}

// AddFeedback はフィードバックを検証してリソースに追加し、更新後のリソースを返す。
// フロー: リソースID照合 → 本文のサニタイズと空判定 → 既定値の補完 → 保存
func (s *ResourceService) AddFeedback(ctx context.Context, resourceID string, sub model.FeedbackSubmission) (*model.Resource, error) {
	if strings.TrimSpace(resourceID) == "" {
		return nil, model.NewInvalidResourceIDError()
	}
	if sub.ResourceID != "" && sub.ResourceID != resourceID {
		return nil, model.NewResourceIDMismatchError(resourceID, sub.ResourceID)
	}

	text := s.sanitizer.SanitizeText(sub.FeedbackText)
	if text == "" {
		return nil, model.NewEmptyFeedbackError()
	}

	userID := strings.TrimSpace(sub.UserID)
	if userID == "" {
		userID = model.AnonymousUserID
	}

	timestamp := sub.Timestamp
	if timestamp.IsZero() {
		timestamp = s.now()
	}

	fb := &model.Feedback{
		ID:           uuid.New().String(),
		ResourceID:   resourceID,
		FeedbackText: text,
		UserID:       userID,
		Timestamp:    timestamp.UTC(),
	}

	res, err := s.repo.AddFeedback(ctx, fb)
	if err != nil {
		return nil, fmt.Errorf("フィードバックの保存に失敗しました: %w", err)
	}
	if res == nil {
		return nil, model.NewResourceNotFoundError(resourceID)
	}

	if s.metrics != nil {
		s.metrics.RecordFeedbackCreated()
	}
	s.logger.Info("フィードバックを追加しました",
		slog.String("resource_id", resourceID),
		slog.String("feedback_id", fb.ID),
		slog.Int("feedback_count", res.FeedbackCount()),
	)

	return res, nil
}
