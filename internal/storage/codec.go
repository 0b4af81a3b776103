package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"signalnet/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion is the VersionedRecord every record is saved with.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeNetwork(desc model.NetworkDescription) ([]byte, error) {
	return json.Marshal(desc)
}

func DecodeNetwork(data []byte) (model.NetworkDescription, error) {
	var desc model.NetworkDescription
	if err := json.Unmarshal(data, &desc); err != nil {
		return model.NetworkDescription{}, err
	}
	if err := checkVersion(desc.VersionedRecord); err != nil {
		return model.NetworkDescription{}, err
	}
	return desc, nil
}

func EncodeRun(run model.RunRecord) ([]byte, error) {
	return json.Marshal(run)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeTrace(trace []model.SlotRecord) ([]byte, error) {
	return json.Marshal(trace)
}

func DecodeTrace(data []byte) ([]model.SlotRecord, error) {
	var trace []model.SlotRecord
	if err := json.Unmarshal(data, &trace); err != nil {
		return nil, err
	}
	for _, record := range trace {
		if err := checkVersion(record.VersionedRecord); err != nil {
			return nil, fmt.Errorf("slot %d: %w", record.Slot, err)
		}
	}
	return trace, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
