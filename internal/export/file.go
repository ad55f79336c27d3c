package export

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/editais-cli/internal/model"
)

// WriteFile writes records to path in the format implied by its extension.
// The file is written next to the target and renamed into place.
func WriteFile(path string, records []model.Record, sheetName string) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "export: create %s", dir)
		}
	}

	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", tmp)
	}
	switch format {
	case FormatCSV:
		err = WriteCSV(f, records)
	default:
		err = WriteXLSX(f, records, sheetName)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "export: rename %s", tmp)
	}

	zap.L().Info("export: wrote results",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.Int("records", len(records)),
	)
	return nil
}
