package reader

import (
	"archive/zip"
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"github.com/achilleasa/batchrender/asset"
	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/log"
)

const (
	// The archive entry holding the gob-encoded scene.Archive.
	ArchiveDataFile = "scene.bin"
)

type zipSceneReader struct {
	logger log.Logger
}

// Create a new zip scene reader
func newZipSceneReader() Reader {
	return &zipSceneReader{
		logger: log.New("zip reader"),
	}
}

// Read objects from a scene archive.
func (p *zipSceneReader) Read(sceneRes *asset.Resource) ([]*scene.Object, error) {
	p.logger.Noticef(`parsing compiled scene from "%s"`, sceneRes.Path())
	start := time.Now()

	// zip package requires a reader implementing ReaderAt. To work around
	// this requirement we read the entire zip file into memory and create
	// a reader from the bytes package that implements ReaderAt
	data, err := io.ReadAll(sceneRes)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var ar *scene.Archive
	for _, f := range zr.File {
		switch f.Name {
		case ArchiveDataFile:
		default:
			p.logger.Warningf("unknown file %s in scene zip file; skipping", f.Name)
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		decoder := gob.NewDecoder(rc)
		err = decoder.Decode(&ar)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("zipSceneReader: failed to load %s: %s", f.Name, err.Error())
		}
	}

	if ar == nil {
		return nil, fmt.Errorf("zipSceneReader: missing %s entry", ArchiveDataFile)
	}
	if ar.Version != scene.ArchiveVersion {
		return nil, fmt.Errorf("zipSceneReader: unsupported archive version %d; expected %d", ar.Version, scene.ArchiveVersion)
	}

	p.logger.Noticef("loaded %d object(s) in %d ms", len(ar.Objects), time.Since(start).Nanoseconds()/1000000)
	return ar.ToObjects(), nil
}
