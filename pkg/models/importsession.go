package models

import (
	"github.com/google/uuid"
)

// ImportEntityType names a bulk-importable entity.
type ImportEntityType string

const (
	ImportEmployee            ImportEntityType = "EMPLOYEE"
	ImportEmployeeTransaction ImportEntityType = "EMPLOYEE_TRANSACTION"
	ImportPayComponent        ImportEntityType = "PAY_COMPONENT"
	ImportBank                ImportEntityType = "BANK"
	ImportBankAccount         ImportEntityType = "BANK_ACCOUNT"
)

// ImportSessionStatus tracks the three-phase pipeline.
type ImportSessionStatus string

const (
	SessionUploaded  ImportSessionStatus = "UPLOADED"
	SessionMapped    ImportSessionStatus = "MAPPED"
	SessionPreviewed ImportSessionStatus = "PREVIEWED"
	SessionConfirmed ImportSessionStatus = "CONFIRMED"
	SessionExecuting ImportSessionStatus = "EXECUTING"
	SessionCompleted ImportSessionStatus = "COMPLETED"
	SessionFailed    ImportSessionStatus = "FAILED"
)

// ImportMode selects execute-phase atomicity.
type ImportMode string

const (
	ModePerRowSavepoint ImportMode = "PER_ROW"
	ModeAllOrNothing    ImportMode = "ALL_OR_NOTHING"
)

// ImportSession is one bulk-import attempt over a tabular file.
// Mapping, Schema, Sample and Params are stored as JSON strings.
type ImportSession struct {
	Record
	EntityType ImportEntityType    `gorm:"type:varchar(32);index" json:"entity_type"`
	Status     ImportSessionStatus `gorm:"type:varchar(32);default:'UPLOADED';index" json:"status"`
	Mode       ImportMode          `gorm:"type:varchar(32);default:'PER_ROW'" json:"mode"`

	FileName string `gorm:"type:varchar(255)" json:"file_name"`
	FilePath string `gorm:"type:varchar(512)" json:"file_path"`

	Mapping string `gorm:"type:text" json:"mapping,omitempty"`
	Schema  string `gorm:"type:text" json:"schema,omitempty"`
	Sample  string `gorm:"type:text" json:"sample,omitempty"`
	Params  string `gorm:"type:text" json:"params,omitempty"`

	TotalRows int `gorm:"default:0" json:"total_rows"`
	ToCreate  int `gorm:"default:0" json:"to_create"`
	ToUpdate  int `gorm:"default:0" json:"to_update"`
	ToSkip    int `gorm:"default:0" json:"to_skip"`
	ToError   int `gorm:"default:0" json:"to_error"`
	Created   int `gorm:"default:0" json:"created"`
	Updated   int `gorm:"default:0" json:"updated"`
	Failed    int `gorm:"default:0" json:"failed"`

	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`
	CreatedBy    string `gorm:"type:varchar(64)" json:"created_by,omitempty"`
}

func (ImportSession) TableName() string { return "import_sessions" }

// PreviewAction is the decision for one input row.
type PreviewAction string

const (
	ActionCreate PreviewAction = "CREATE"
	ActionUpdate PreviewAction = "UPDATE"
	ActionSkip   PreviewAction = "SKIP"
	ActionError  PreviewAction = "ERROR"
)

// ImportPreviewRow is the per-row outcome of the preview phase.
// RawData, ParsedData, Changes, Errors and Warnings are JSON strings.
type ImportPreviewRow struct {
	Record
	ImportSessionID uuid.UUID     `gorm:"type:text;index;not null" json:"import_session_id"`
	RowIndex        int           `gorm:"not null" json:"row_index"`
	Action          PreviewAction `gorm:"type:varchar(16);index" json:"action"`

	RawData          string  `gorm:"type:text" json:"raw_data"`
	ParsedData       string  `gorm:"type:text" json:"parsed_data"`
	Changes          string  `gorm:"type:text" json:"changes,omitempty"`
	ExistingRecordID *string `gorm:"type:text" json:"existing_record_id,omitempty"`
	Errors           string  `gorm:"type:text" json:"errors,omitempty"`
	Warnings         string  `gorm:"type:text" json:"warnings,omitempty"`

	Executed     bool   `gorm:"default:false" json:"executed"`
	ExecuteError string `gorm:"type:text" json:"execute_error,omitempty"`
}

func (ImportPreviewRow) TableName() string { return "import_preview_rows" }
