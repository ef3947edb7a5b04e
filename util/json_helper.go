package util

import (
	"encoding/json"
	"os"
)

func JSONString(v interface{}) string {
	data, _ := json.Marshal(v)
	return string(data)
}

// LoadJSONFile decode a json file into v
func LoadJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
