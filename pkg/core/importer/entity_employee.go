package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

func employeeHandler() *Handler {
	schema := Schema{
		{Name: "employee_number", Required: true, Kind: "string"},
		{Name: "first_name", Required: true, Kind: "string"},
		{Name: "last_name", Required: true, Kind: "string"},
		{Name: "email", Kind: "string"},
		{Name: "status", Kind: "string"},
		{Name: "date_of_joining", Required: true, Kind: "date"},
		{Name: "date_of_exit", Kind: "date"},
		{Name: "is_resident", Kind: "bool"},
		{Name: "position", Kind: "string"},
		{Name: "department", Kind: "string"},
		{Name: "grade", Kind: "string"},
	}
	e := &employeeEntity{schema: schema}
	return &Handler{Schema: schema, Validator: e, Matcher: e, Creator: e}
}

type employeeEntity struct {
	schema Schema
}

var employeeStatuses = map[string]models.EmployeeStatus{
	string(models.EmployeeActive):     models.EmployeeActive,
	string(models.EmployeeOnLeave):    models.EmployeeOnLeave,
	string(models.EmployeeProbation):  models.EmployeeProbation,
	string(models.EmployeeNotice):     models.EmployeeNotice,
	string(models.EmployeeSuspended):  models.EmployeeSuspended,
	string(models.EmployeeTerminated): models.EmployeeTerminated,
}

func (e *employeeEntity) Validate(row map[string]string) (errs []string, warns []string) {
	errs = checkFormats(e.schema, row)
	if s := strings.ToUpper(strings.TrimSpace(row["status"])); s != "" {
		if _, ok := employeeStatuses[s]; !ok {
			errs = append(errs, fmt.Sprintf("status: unknown value %q", row["status"]))
		}
	}
	if email := row["email"]; email != "" && !strings.Contains(email, "@") {
		warns = append(warns, "email looks malformed: "+email)
	}
	return errs, warns
}

func (e *employeeEntity) Match(ctx context.Context, db *gorm.DB, row map[string]string) (*MatchResult, error) {
	var existing models.Employee
	err := store.Scoped(ctx, db).
		Where("employee_number = ?", row["employee_number"]).
		First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return &MatchResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("match employee: %w", err)
	}

	changes := map[string]FieldChange{}
	diffStr(changes, "first_name", existing.FirstName, row["first_name"])
	diffStr(changes, "last_name", existing.LastName, row["last_name"])
	diffStr(changes, "email", existing.Email, row["email"])
	diffStr(changes, "position", existing.Position, row["position"])
	if s := strings.ToUpper(strings.TrimSpace(row["status"])); s != "" && s != string(existing.Status) {
		changes["status"] = FieldChange{Old: string(existing.Status), New: s}
	}
	return &MatchResult{ExistingID: &existing.ID, Changes: changes}, nil
}

func (e *employeeEntity) Create(ctx context.Context, db *gorm.DB, row map[string]string, user string) error {
	emp := models.Employee{
		Record:         models.Record{TenantID: store.TenantID(ctx)},
		EmployeeNumber: row["employee_number"],
		FirstName:      row["first_name"],
		LastName:       row["last_name"],
		Email:          row["email"],
		Position:       row["position"],
		Status:         models.EmployeeActive,
		IsResident:     true,
	}
	if s := strings.ToUpper(strings.TrimSpace(row["status"])); s != "" {
		emp.Status = employeeStatuses[s]
	}
	if v, ok := parseBool(row["is_resident"]); row["is_resident"] != "" && ok {
		emp.IsResident = v
	}
	if d, ok := parseDate(row["date_of_joining"]); ok {
		emp.DateOfJoining = d
	}
	if d, ok := parseDate(row["date_of_exit"]); row["date_of_exit"] != "" && ok {
		emp.DateOfExit = &d
	}

	if name := row["department"]; name != "" {
		dept, err := findOrCreateDepartment(ctx, db, name)
		if err != nil {
			return err
		}
		emp.DepartmentID = &dept.ID
	}
	if name := row["grade"]; name != "" {
		gradeID, err := findGrade(ctx, db, name)
		if err != nil {
			return err
		}
		emp.GradeID = gradeID
	}

	if err := db.Create(&emp).Error; err != nil {
		return fmt.Errorf("create employee %s: %w", emp.EmployeeNumber, err)
	}

	hist := models.EmploymentHistory{
		Record:        models.Record{TenantID: store.TenantID(ctx)},
		EmployeeID:    emp.ID,
		ChangeType:    models.HistoryHire,
		EffectiveDate: emp.DateOfJoining,
		GradeID:       emp.GradeID,
		Position:      emp.Position,
		Notes:         "bulk import by " + user,
	}
	if err := db.Create(&hist).Error; err != nil {
		return fmt.Errorf("create hire history: %w", err)
	}
	return nil
}

func (e *employeeEntity) Update(ctx context.Context, db *gorm.DB, existingID uuid.UUID, row map[string]string, user string) error {
	updates := map[string]interface{}{}
	setStr(updates, "first_name", row["first_name"])
	setStr(updates, "last_name", row["last_name"])
	setStr(updates, "email", row["email"])
	setStr(updates, "position", row["position"])
	if s := strings.ToUpper(strings.TrimSpace(row["status"])); s != "" {
		updates["status"] = s
	}
	if d, ok := parseDate(row["date_of_exit"]); row["date_of_exit"] != "" && ok {
		updates["date_of_exit"] = d
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now()
	res := store.Scoped(ctx, db).Model(&models.Employee{}).
		Where("id = ?", existingID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update employee: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("employee %s no longer exists", existingID)
	}
	return nil
}

func findOrCreateDepartment(ctx context.Context, db *gorm.DB, name string) (*models.Department, error) {
	var dept models.Department
	err := store.Scoped(ctx, db).Where("name = ?", name).First(&dept).Error
	if err == nil {
		return &dept, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("find department: %w", err)
	}
	dept = models.Department{
		Record: models.Record{TenantID: store.TenantID(ctx)},
		Name:   name,
	}
	if err := db.Create(&dept).Error; err != nil {
		return nil, fmt.Errorf("create department %s: %w", name, err)
	}
	return &dept, nil
}

func findGrade(ctx context.Context, db *gorm.DB, name string) (*uuid.UUID, error) {
	var grade models.Grade
	err := store.Scoped(ctx, db).Where("name = ?", name).First(&grade).Error
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("grade %q does not exist", name)
	}
	if err != nil {
		return nil, fmt.Errorf("find grade: %w", err)
	}
	return &grade.ID, nil
}

// diffStr records a change when the incoming value is set and differs.
func diffStr(changes map[string]FieldChange, field, old, incoming string) {
	if incoming != "" && incoming != old {
		changes[field] = FieldChange{Old: old, New: incoming}
	}
}

func setStr(updates map[string]interface{}, field, v string) {
	if v != "" {
		updates[field] = v
	}
}
