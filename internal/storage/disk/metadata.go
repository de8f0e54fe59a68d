package disk

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/tusstore/internal/common"
	"github.com/dmitrijs2005/tusstore/internal/filex"
	"github.com/dmitrijs2005/tusstore/internal/upload"
)

const recordVersion = 1

// record is the versioned envelope stored in the info file.
type record struct {
	Version int          `json:"version"`
	Upload  *upload.Info `json:"upload"`
}

func encodeRecord(info *upload.Info) ([]byte, error) {
	return json.Marshal(record{Version: recordVersion, Upload: info})
}

func decodeRecord(id string, b []byte) (*upload.Info, error) {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode info of %s: %w: %v", id, common.ErrorIncorrectMetadata, err)
	}
	if r.Version != recordVersion {
		return nil, fmt.Errorf("info of %s has version %d: %w", id, r.Version, common.ErrorIncorrectMetadata)
	}
	if r.Upload == nil || r.Upload.ID != id {
		return nil, fmt.Errorf("info of %s does not describe it: %w", id, common.ErrorIncorrectMetadata)
	}
	return r.Upload, nil
}

// load reads the metadata record of id.
func (s *Service) load(id string) (*upload.Info, error) {
	path, err := s.layout.infoPath(id)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, notFoundIfMissing(err, id)
	}
	return decodeRecord(id, b)
}

// save atomically replaces the metadata record of info. It fails with
// ErrorNotFound when the upload directory is gone.
func (s *Service) save(info *upload.Info) error {
	path, err := s.layout.infoPath(info.ID)
	if err != nil {
		return err
	}
	b, err := encodeRecord(info)
	if err != nil {
		return fmt.Errorf("encode info of %s: %w", info.ID, err)
	}
	if err := filex.WriteFileAtomic(path, b, 0o640); err != nil {
		return notFoundIfMissing(err, info.ID)
	}
	return nil
}
