package common

import (
	"encoding/json"
	"fmt"
	"os"
)

func CreateDirectoryIfNotExists(dirPath string, perm os.FileMode) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, perm)
	}

	return nil
}

func RemoveDirOrFilePathIfExists(dirOrFilePath string) (err error) {
	if _, err = os.Stat(dirOrFilePath); err == nil {
		os.RemoveAll(dirOrFilePath)
	}

	return err
}

func LoadJSON[TReturn any](path string) (*TReturn, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %v: %w", path, err)
	}

	defer f.Close()

	var value TReturn

	decoder := json.NewDecoder(f)
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("failed to decode %v: %w", path, err)
	}

	return &value, nil
}
