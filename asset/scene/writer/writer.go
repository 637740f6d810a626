package writer

import (
	"archive/zip"
	"encoding/gob"
	"time"

	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/asset/scene/reader"
	"github.com/achilleasa/batchrender/log"
	"github.com/spf13/afero"
)

// The Writer interface is implemented by all scene writers.
type Writer interface {
	// Write a set of objects.
	Write([]*scene.Object) error
}

// Write objects to a scene archive. A nil fs selects the OS filesystem.
func WriteArchive(fs afero.Fs, objects []*scene.Object, filename string) error {
	writer := newZipSceneWriter(fs, filename)
	return writer.Write(objects)
}

type zipSceneWriter struct {
	logger    log.Logger
	fs        afero.Fs
	sceneFile string
}

// Create a new zip scene writer
func newZipSceneWriter(fs afero.Fs, sceneFile string) *zipSceneWriter {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &zipSceneWriter{
		logger:    log.New("zip writer"),
		fs:        fs,
		sceneFile: sceneFile,
	}
}

// Write objects to a zip file.
func (w *zipSceneWriter) Write(objects []*scene.Object) (err error) {
	w.logger.Noticef("writing compressed scene to %s", w.sceneFile)
	start := time.Now()

	zipFile, err := w.fs.Create(w.sceneFile)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := zipFile.Close(); err == nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(zipFile)
	cw, err := zw.Create(reader.ArchiveDataFile)
	if err != nil {
		return err
	}

	encoder := gob.NewEncoder(cw)
	if err = encoder.Encode(scene.NewArchive(objects)); err != nil {
		return err
	}

	if err = zw.Close(); err != nil {
		return err
	}

	w.logger.Noticef("compressed %d object(s) in %d ms", len(objects), time.Since(start).Nanoseconds()/1000000)
	return nil
}
