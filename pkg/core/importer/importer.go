package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/progress"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

// progressEvery bounds how many rows may pass between two progress
// publications during execute.
const progressEvery = 10

// Service drives the three-phase import pipeline. AI is optional; a
// nil collaborator means every analyse goes straight to the fuzzy
// matcher.
type Service struct {
	db       *gorm.DB
	registry *Registry
	ai       Collaborator
	progress *progress.Store
}

// New builds a service over the default registry.
func New(db *gorm.DB, ai Collaborator, prog *progress.Store) *Service {
	if prog == nil {
		prog = progress.NewStore(time.Hour)
	}
	return &Service{db: db, registry: DefaultRegistry(), ai: ai, progress: prog}
}

// Registry exposes the handler registry for callers that register
// additional entities at startup.
func (s *Service) Registry() *Registry { return s.registry }

// Progress exposes the progress store for the polling surface.
func (s *Service) Progress() *progress.Store { return s.progress }

// AnalyseInput describes the uploaded file.
type AnalyseInput struct {
	FilePath   string
	FileName   string
	EntityType models.ImportEntityType // optional, detected when empty
	Mode       models.ImportMode
	Params     map[string]string // defaults merged into every row
	Actor      string
}

// Analyse reads the file, detects the entity type when not given,
// proposes a column mapping and persists a MAPPED session carrying the
// mapping, the canonical schema and a 3-row sample.
func (s *Service) Analyse(ctx context.Context, in AnalyseInput) (*models.ImportSession, error) {
	table, err := ReadFile(in.FilePath)
	if err != nil {
		return nil, err
	}
	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("file has no columns")
	}
	sample := table.Sample(3)

	entity := in.EntityType
	if entity == "" {
		entity = s.detectEntity(ctx, table.Columns, sample)
	}
	handler := s.registry.Handler(entity)
	if handler == nil {
		return nil, fmt.Errorf("unsupported entity type %q", entity)
	}

	mapping := s.mapColumns(ctx, table.Columns, sample, handler.Schema, entity)

	mappingJSON, _ := json.Marshal(mapping)
	schemaJSON, _ := json.Marshal(handler.Schema)
	sampleJSON, _ := json.Marshal(sample)
	paramsJSON, _ := json.Marshal(in.Params)

	mode := in.Mode
	if mode == "" {
		mode = models.ModePerRowSavepoint
	}
	session := &models.ImportSession{
		Record:     models.Record{TenantID: store.TenantID(ctx)},
		EntityType: entity,
		Status:     models.SessionMapped,
		Mode:       mode,
		FileName:   in.FileName,
		FilePath:   in.FilePath,
		Mapping:    string(mappingJSON),
		Schema:     string(schemaJSON),
		Sample:     string(sampleJSON),
		Params:     string(paramsJSON),
		TotalRows:  len(table.Rows),
		CreatedBy:  in.Actor,
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("create import session: %w", err)
	}
	return session, nil
}

// detectEntity prefers the AI collaborator, falling back to schema
// similarity scoring. AI failure is never fatal.
func (s *Service) detectEntity(ctx context.Context, columns []string, sample []map[string]string) models.ImportEntityType {
	if s.ai != nil {
		entity, err := s.ai.DetectEntityType(ctx, columns, sample)
		if err == nil && s.registry.Handler(entity) != nil {
			return entity
		}
		if err != nil {
			log.Warn().Err(err).Msg("entity detection fell back to fuzzy matching")
		}
	}
	return fuzzyDetectEntity(s.registry, columns)
}

// mapColumns prefers the AI collaborator and sanitises its answer:
// unknown target fields are dropped silently, unmentioned source
// columns map to nil. On AI failure the fuzzy matcher decides.
func (s *Service) mapColumns(ctx context.Context, columns []string, sample []map[string]string, schema Schema, entity models.ImportEntityType) map[string]*string {
	if s.ai != nil {
		proposed, err := s.ai.MapColumns(ctx, columns, sample, schema, entity)
		if err == nil {
			mapping := make(map[string]*string, len(columns))
			for _, col := range columns {
				mapping[col] = nil
				if target, ok := proposed[col]; ok && target != nil && schema.Has(*target) {
					mapping[col] = target
				}
			}
			return mapping
		}
		log.Warn().Err(err).Msg("column mapping fell back to fuzzy matching")
	}
	return fuzzyMapColumns(columns, schema)
}

// SetMapping replaces the proposed mapping with an operator-adjusted
// one before preview. Targets outside the schema are rejected.
func (s *Service) SetMapping(ctx context.Context, sessionID uuid.UUID, mapping map[string]*string) error {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	handler := s.registry.Handler(session.EntityType)
	for col, target := range mapping {
		if target != nil && !handler.Schema.Has(*target) {
			return fmt.Errorf("column %q maps to unknown field %q", col, *target)
		}
	}
	mappingJSON, _ := json.Marshal(mapping)
	return s.updateSession(ctx, sessionID, map[string]interface{}{"mapping": string(mappingJSON)})
}

// Preview reads every row, applies the mapping and params defaults,
// validates, matches and writes one ImportPreviewRow per input row.
// Nothing outside the session tables is mutated; re-preview replaces
// the prior rows.
func (s *Service) Preview(ctx context.Context, sessionID uuid.UUID) (*models.ImportSession, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case models.SessionMapped, models.SessionPreviewed:
	default:
		return nil, fmt.Errorf("session is %s, expected MAPPED or PREVIEWED", session.Status)
	}
	handler := s.registry.Handler(session.EntityType)
	if handler == nil {
		return nil, fmt.Errorf("unsupported entity type %q", session.EntityType)
	}

	var mapping map[string]*string
	if err := json.Unmarshal([]byte(session.Mapping), &mapping); err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}
	params := map[string]string{}
	if session.Params != "" {
		if err := json.Unmarshal([]byte(session.Params), &params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
	}

	table, err := ReadFile(session.FilePath)
	if err != nil {
		return nil, err
	}

	tenant := store.TenantID(ctx)
	var toCreate, toUpdate, toSkip, toError int
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("import_session_id = ?", sessionID).
			Delete(&models.ImportPreviewRow{}).Error; err != nil {
			return fmt.Errorf("clear prior preview: %w", err)
		}

		for i := range table.Rows {
			raw := table.Row(i)
			parsed := applyMapping(raw, mapping, params, handler.Schema)

			errs, warns := handler.Validator.Validate(parsed)
			action := models.ActionCreate
			var existingID *string
			var changes map[string]FieldChange

			if len(errs) == 0 {
				match, err := handler.Matcher.Match(ctx, tx, parsed)
				if err != nil {
					return err
				}
				errs = append(errs, match.Errors...)
				if len(match.Errors) == 0 && match.ExistingID != nil {
					id := match.ExistingID.String()
					existingID = &id
					changes = match.Changes
					if len(changes) == 0 {
						action = models.ActionSkip
					} else {
						action = models.ActionUpdate
					}
				}
			}
			if len(errs) > 0 {
				action = models.ActionError
			}

			row := models.ImportPreviewRow{
				Record:           models.Record{TenantID: tenant},
				ImportSessionID:  sessionID,
				RowIndex:         i,
				Action:           action,
				RawData:          mustJSON(raw),
				ParsedData:       mustJSON(parsed),
				ExistingRecordID: existingID,
			}
			if len(changes) > 0 {
				row.Changes = mustJSON(changes)
			}
			if len(errs) > 0 {
				row.Errors = mustJSON(errs)
			}
			if len(warns) > 0 {
				row.Warnings = mustJSON(warns)
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("create preview row %d: %w", i, err)
			}

			switch action {
			case models.ActionCreate:
				toCreate++
			case models.ActionUpdate:
				toUpdate++
			case models.ActionSkip:
				toSkip++
			case models.ActionError:
				toError++
			}
		}

		return tx.Model(&models.ImportSession{}).Where("id = ?", sessionID).
			Updates(map[string]interface{}{
				"status":     models.SessionPreviewed,
				"total_rows": len(table.Rows),
				"to_create":  toCreate,
				"to_update":  toUpdate,
				"to_skip":    toSkip,
				"to_error":   toError,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.loadSession(ctx, sessionID)
}

// applyMapping projects a source row onto target fields and fills
// empty targets from the session params.
func applyMapping(raw map[string]string, mapping map[string]*string, params map[string]string, schema Schema) map[string]string {
	parsed := make(map[string]string, len(schema))
	for col, target := range mapping {
		if target == nil {
			continue
		}
		if v, ok := raw[col]; ok && v != "" {
			parsed[*target] = v
		}
	}
	for field, v := range params {
		if !schema.Has(field) {
			continue
		}
		if parsed[field] == "" {
			parsed[field] = v
		}
	}
	return parsed
}

// Confirm locks a previewed session for execution.
func (s *Service) Confirm(ctx context.Context, sessionID uuid.UUID) error {
	res := store.Scoped(ctx, s.db).Model(&models.ImportSession{}).
		Where("id = ? AND status = ?", sessionID, models.SessionPreviewed).
		Update("status", models.SessionConfirmed)
	if res.Error != nil {
		return fmt.Errorf("confirm session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session not found or not previewed")
	}
	return nil
}

// Execute dispatches every CREATE/UPDATE preview row to the entity's
// creator. Per-row mode isolates failures to their row; all-or-nothing
// rolls the whole session back on the first failure. Progress streams
// under the session's import key; cancellation between rows marks the
// session FAILED.
func (s *Service) Execute(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != models.SessionConfirmed {
		return fmt.Errorf("session is %s, expected CONFIRMED", session.Status)
	}
	handler := s.registry.Handler(session.EntityType)
	if handler == nil {
		return fmt.Errorf("unsupported entity type %q", session.EntityType)
	}

	var rows []models.ImportPreviewRow
	err = store.Scoped(ctx, s.db).
		Where("import_session_id = ? AND action IN ?", sessionID,
			[]models.PreviewAction{models.ActionCreate, models.ActionUpdate}).
		Order("row_index asc").
		Find(&rows).Error
	if err != nil {
		return fmt.Errorf("load preview rows: %w", err)
	}

	if err := s.updateSession(ctx, sessionID, map[string]interface{}{"status": models.SessionExecuting}); err != nil {
		return err
	}

	key := progress.ImportKey(sessionID.String())
	s.progress.Start(key, len(rows))
	logger := log.With().Str("session", sessionID.String()).
		Str("entity", string(session.EntityType)).Int("rows", len(rows)).Logger()

	if session.Mode == models.ModeAllOrNothing {
		return s.executeAtomic(ctx, session, handler, rows, key, logger)
	}
	return s.executePerRow(ctx, session, handler, rows, key, logger)
}

func (s *Service) executePerRow(ctx context.Context, session *models.ImportSession, handler *Handler, rows []models.ImportPreviewRow, key string, logger zerolog.Logger) error {
	var created, updated, failed int
	for i := range rows {
		if s.progress.Cancelled(key) {
			s.progress.Finish(key, progress.StatusCancelled, "import cancelled")
			return s.finishSession(ctx, session.ID, models.SessionFailed, created, updated, failed, "cancelled by operator")
		}
		row := &rows[i]
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.executeRow(ctx, tx, handler, row, session.CreatedBy)
		})
		if err != nil {
			failed++
			logger.Warn().Err(err).Int("row", row.RowIndex).Msg("import row failed")
			s.markRow(ctx, row.ID, false, err.Error())
		} else {
			if row.Action == models.ActionCreate {
				created++
			} else {
				updated++
			}
			s.markRow(ctx, row.ID, true, "")
		}
		if (i+1)%progressEvery == 0 {
			s.progress.Update(key, i+1)
		}
	}

	if err := s.finishSession(ctx, session.ID, models.SessionCompleted, created, updated, failed, ""); err != nil {
		return err
	}
	s.progress.Finish(key, progress.StatusCompleted,
		fmt.Sprintf("created %d, updated %d, failed %d", created, updated, failed))
	logger.Info().Int("created", created).Int("updated", updated).Int("failed", failed).
		Msg("import execute finished")
	return nil
}

func (s *Service) executeAtomic(ctx context.Context, session *models.ImportSession, handler *Handler, rows []models.ImportPreviewRow, key string, logger zerolog.Logger) error {
	var created, updated int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			row := &rows[i]
			if err := s.executeRow(ctx, tx, handler, row, session.CreatedBy); err != nil {
				return fmt.Errorf("row %d: %w", row.RowIndex, err)
			}
			if err := tx.Model(&models.ImportPreviewRow{}).Where("id = ?", row.ID).
				Update("executed", true).Error; err != nil {
				return fmt.Errorf("mark row %d: %w", row.RowIndex, err)
			}
			if row.Action == models.ActionCreate {
				created++
			} else {
				updated++
			}
			if (i+1)%progressEvery == 0 {
				s.progress.Update(key, i+1)
			}
		}
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Msg("atomic import rolled back")
		s.progress.Finish(key, progress.StatusFailed, err.Error())
		return s.finishSession(ctx, session.ID, models.SessionFailed, 0, 0, len(rows), err.Error())
	}

	if err := s.finishSession(ctx, session.ID, models.SessionCompleted, created, updated, 0, ""); err != nil {
		return err
	}
	s.progress.Finish(key, progress.StatusCompleted,
		fmt.Sprintf("created %d, updated %d", created, updated))
	logger.Info().Int("created", created).Int("updated", updated).Msg("import execute finished")
	return nil
}

func (s *Service) executeRow(ctx context.Context, tx *gorm.DB, handler *Handler, row *models.ImportPreviewRow, actor string) error {
	var parsed map[string]string
	if err := json.Unmarshal([]byte(row.ParsedData), &parsed); err != nil {
		return fmt.Errorf("decode parsed data: %w", err)
	}
	if row.Action == models.ActionUpdate && row.ExistingRecordID != nil {
		id, err := uuid.Parse(*row.ExistingRecordID)
		if err != nil {
			return fmt.Errorf("bad existing record id: %w", err)
		}
		return handler.Creator.Update(ctx, tx, id, parsed, actor)
	}
	return handler.Creator.Create(ctx, tx, parsed, actor)
}

func (s *Service) markRow(ctx context.Context, rowID uuid.UUID, executed bool, execErr string) {
	err := s.db.WithContext(ctx).Model(&models.ImportPreviewRow{}).
		Where("id = ?", rowID).
		Updates(map[string]interface{}{"executed": executed, "execute_error": execErr}).Error
	if err != nil {
		log.Error().Err(err).Str("row", rowID.String()).Msg("preview row flag write failed")
	}
}

func (s *Service) finishSession(ctx context.Context, sessionID uuid.UUID, status models.ImportSessionStatus, created, updated, failed int, errMsg string) error {
	return s.updateSession(ctx, sessionID, map[string]interface{}{
		"status":        status,
		"created":       created,
		"updated":       updated,
		"failed":        failed,
		"error_message": errMsg,
	})
}

func (s *Service) loadSession(ctx context.Context, sessionID uuid.UUID) (*models.ImportSession, error) {
	var session models.ImportSession
	err := store.Scoped(ctx, s.db).First(&session, "id = ?", sessionID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &session, nil
}

func (s *Service) updateSession(ctx context.Context, sessionID uuid.UUID, updates map[string]interface{}) error {
	res := store.Scoped(ctx, s.db).Model(&models.ImportSession{}).
		Where("id = ?", sessionID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// PreviewRows returns the preview rows of a session in file order.
func (s *Service) PreviewRows(ctx context.Context, sessionID uuid.UUID) ([]models.ImportPreviewRow, error) {
	var rows []models.ImportPreviewRow
	err := store.Scoped(ctx, s.db).
		Where("import_session_id = ?", sessionID).
		Order("row_index asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load preview rows: %w", err)
	}
	return rows, nil
}
