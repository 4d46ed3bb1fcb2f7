package decision

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/riskstack/riskmodel/internal/models"
	"github.com/riskstack/riskmodel/internal/utils"
)

// Marshal renders a summary as the persisted JSON document.
func Marshal(summary models.DecisionSummary) ([]byte, error) {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, utils.NewAppError("decision.Marshal", utils.ErrInvalidInput, "encode summary", err)
	}
	return append(data, '\n'), nil
}

// Save writes summary to path, fully replacing any existing file. The
// document is written to a temporary file in the same directory and renamed
// into place, so readers see either the previous artifact or the new one.
func Save(summary models.DecisionSummary, path string) error {
	const op = "decision.Save"
	data, err := Marshal(summary)
	if err != nil {
		return err
	}

	return utils.WriteFileAtomic(op, path, data)
}

// Load reads a summary written by Save.
func Load(path string) (models.DecisionSummary, error) {
	const op = "decision.Load"
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.DecisionSummary{}, utils.NewAppError(op, utils.ErrNotFound, path, err)
		}
		return models.DecisionSummary{}, utils.NewAppError(op, utils.ErrIO, path, err)
	}
	var summary models.DecisionSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return models.DecisionSummary{}, utils.NewAppError(op, utils.ErrInvalidInput, path, err)
	}
	return summary, nil
}
