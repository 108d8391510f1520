package types

import (
	"encoding/json"
	"fmt"
)

// DataType identifies how a piece's content should be interpreted.
type DataType string

const (
	DataTypeText      DataType = "text"
	DataTypeImagePath DataType = "image_path"
	DataTypeAudioPath DataType = "audio_path"
	DataTypeURL       DataType = "url"
	DataTypeError     DataType = "error"
)

// String returns the string representation of DataType
func (d DataType) String() string {
	return string(d)
}

// IsValid checks if the DataType is a known value
func (d DataType) IsValid() bool {
	switch d {
	case DataTypeText, DataTypeImagePath, DataTypeAudioPath, DataTypeURL, DataTypeError:
		return true
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler
func (d DataType) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(d))
}

// UnmarshalJSON implements json.Unmarshaler
func (d *DataType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	dt := DataType(str)
	if !dt.IsValid() {
		return fmt.Errorf("invalid data type: %s", str)
	}

	*d = dt
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler for seed prompt and config files.
func (d *DataType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	if str == "" {
		*d = DataTypeText
		return nil
	}

	dt := DataType(str)
	if !dt.IsValid() {
		return fmt.Errorf("invalid data type: %s", str)
	}

	*d = dt
	return nil
}
