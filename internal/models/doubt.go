package models

import "time"

// Subjects a doubt can be tagged with.
const (
	SubjectComputerScience       = "Computer Science"
	SubjectMathematics           = "Mathematics"
	SubjectPhysics               = "Physics"
	SubjectChemistry             = "Chemistry"
	SubjectBiology               = "Biology"
	SubjectElectricalEngineering = "Electrical Engineering"
)

// Academic years.
const (
	YearFirst  = "1st Year"
	YearSecond = "2nd Year"
	YearThird  = "3rd Year"
	YearFourth = "4th Year"
)

// Academic branches.
const (
	BranchCSE   = "Computer Science & Engg."
	BranchECE   = "Electronics & Communication"
	BranchCE    = "Chemical Engineering"
	BranchEEE   = "Electrical & Electronics"
	BranchCivil = "Civil Engineering"
	BranchMech  = "Mechanical Engineering"
)

var (
	subjects = []string{
		SubjectComputerScience, SubjectMathematics, SubjectPhysics,
		SubjectChemistry, SubjectBiology, SubjectElectricalEngineering,
	}
	years    = []string{YearFirst, YearSecond, YearThird, YearFourth}
	branches = []string{BranchCSE, BranchECE, BranchCE, BranchEEE, BranchCivil, BranchMech}
)

// Doubt is a question posted by a student.
//
// AuthorName and AuthorAvatar are denormalized copies of the author's
// profile; the repository keeps them in sync on rename.
type Doubt struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Title        string    `gorm:"not null" json:"title"`
	Description  string    `gorm:"type:text;not null" json:"description"`
	Subject      string    `gorm:"not null;index" json:"subject"`
	Year         string    `gorm:"not null" json:"year"`
	Branch       string    `json:"branch"`
	AuthorID     uint      `gorm:"not null;index" json:"author_id"`
	AuthorName   string    `gorm:"not null" json:"author_name"`
	AuthorAvatar string    `json:"author_avatar"`
	IsResolved   bool      `gorm:"not null;default:false" json:"is_resolved"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DoubtFilter narrows a doubt listing. Zero values mean "any".
type DoubtFilter struct {
	Subject  string
	Year     string
	Branch   string
	Resolved *bool
}

// IsValidSubject reports whether s is a known subject.
func IsValidSubject(s string) bool { return contains(subjects, s) }

// IsValidYear reports whether y is a known academic year.
func IsValidYear(y string) bool { return contains(years, y) }

// IsValidBranch reports whether b is a known branch.
func IsValidBranch(b string) bool { return contains(branches, b) }

// Subjects returns the known subjects in display order.
func Subjects() []string { return append([]string(nil), subjects...) }

// Branches returns the known branches in display order.
func Branches() []string { return append([]string(nil), branches...) }

// Years returns the known academic years in order.
func Years() []string { return append([]string(nil), years...) }

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
