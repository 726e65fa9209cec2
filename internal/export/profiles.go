package export

import (
	"fmt"
	"io"
	"time"

	"profilebus/internal/models"
)

const (
	profilesSheet = "Profiles"
	dateLayout    = "2006-01-02 15:04:05"
)

var profileColumns = []string{"ID", "Active", "DLL Path", "Token Name", "Created At", "Updated At"}

// Profiles writes profiles as an .xlsx workbook to w.
func Profiles(w io.Writer, profiles []models.Profile) error {
	wb, err := buildProfiles(profiles)
	if err != nil {
		return err
	}
	defer wb.Close()
	return wb.Save(w)
}

// ProfilesToFile writes profiles as an .xlsx workbook at path.
func ProfilesToFile(path string, profiles []models.Profile) error {
	wb, err := buildProfiles(profiles)
	if err != nil {
		return err
	}
	defer wb.Close()
	if err := wb.SaveToFile(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func buildProfiles(profiles []models.Profile) (*Workbook, error) {
	wb := NewWorkbook()
	if err := wb.AddSheet(profilesSheet); err != nil {
		wb.Close()
		return nil, err
	}
	if err := wb.WriteHeader(profileColumns); err != nil {
		wb.Close()
		return nil, err
	}
	for _, p := range profiles {
		if err := wb.WriteRow([]any{
			p.ID,
			activeLabel(p.Active),
			p.DLLPath,
			p.TokenName,
			formatTime(p.CreatedAt),
			formatTime(p.UpdatedAt),
		}); err != nil {
			wb.Close()
			return nil, fmt.Errorf("write profile %d: %w", p.ID, err)
		}
	}
	return wb, nil
}

func activeLabel(active bool) string {
	if active {
		return "Yes"
	}
	return "No"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(dateLayout)
}
