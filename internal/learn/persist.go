package learn

import (
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/riskstack/riskmodel/internal/utils"
)

type modelEnvelope struct {
	Name    string             `msgpack:"name"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// MarshalModel encodes a fitted catalogue model.
func MarshalModel(m Trainable) ([]byte, error) {
	payload, err := msgpack.Marshal(m)
	if err != nil {
		return nil, utils.NewAppError("learn.MarshalModel", utils.ErrInvalidInput, "encode "+m.Name(), err)
	}
	return msgpack.Marshal(modelEnvelope{Name: m.Name(), Payload: payload})
}

// UnmarshalModel decodes a model written by MarshalModel.
func UnmarshalModel(data []byte) (Trainable, error) {
	const op = "learn.UnmarshalModel"
	var env modelEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, utils.NewAppError(op, utils.ErrInvalidInput, "decode envelope", err)
	}
	var m Trainable
	switch env.Name {
	case "LinearRegression":
		m = &LinearRegression{}
	case "LogisticRegression":
		m = &LogisticRegression{}
	case "DecisionTree":
		m = &DecisionTree{}
	case "RandomForest":
		m = &RandomForest{}
	case "GradientBoosting":
		m = &GradientBoosting{}
	case "XGBoost":
		m = &XGBoost{}
	default:
		return nil, utils.InvalidInput(op, "unknown model %q", env.Name)
	}
	if err := msgpack.Unmarshal(env.Payload, m); err != nil {
		return nil, utils.NewAppError(op, utils.ErrInvalidInput, "decode "+env.Name, err)
	}
	return m, nil
}

// SaveModel writes a fitted model to path, replacing it atomically.
func SaveModel(path string, m Trainable) error {
	const op = "learn.SaveModel"
	data, err := MarshalModel(m)
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(op, path, data)
}

// LoadModel reads a model written by SaveModel.
func LoadModel(path string) (Trainable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, utils.NewAppError("learn.LoadModel", utils.ErrNotFound, path, err)
		}
		return nil, utils.NewAppError("learn.LoadModel", utils.ErrIO, path, err)
	}
	return UnmarshalModel(data)
}
