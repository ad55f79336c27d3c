package pipeline

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/editais-cli/internal/model"
)

// ErrNoSelection is returned when a search is started with no municipality selected.
var ErrNoSelection = eris.New("pipeline: no municipality selected")

// ShardError reports that collection for one municipality failed. The
// search as a whole continues without that shard's items.
type ShardError struct {
	Code string
	Name string
	Err  error
}

func (e *ShardError) Error() string {
	return fmt.Sprintf("shard %s (%s): %v", e.Name, e.Code, e.Err)
}

func (e *ShardError) Unwrap() error {
	return e.Err
}

// Warning converts e into a ShardWarning.
func (e *ShardError) Warning() model.ShardWarning {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return model.ShardWarning{Code: e.Code, Name: e.Name, Message: msg}
}
