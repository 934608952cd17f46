package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	// Packages
	schema "github.com/mutablelogic/go-conddb/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type ObjectCommands struct {
	Get      GetObjectCommand      `cmd:"" group:"OBJECTS" help:"Resolve and print the best matching object version"`
	Download DownloadObjectCommand `cmd:"" group:"OBJECTS" help:"Download the content of the best matching object version"`
	Upload   UploadObjectCommand   `cmd:"" group:"OBJECTS" help:"Upload a file as a new object version"`
	Browse   BrowseObjectsCommand  `cmd:"" group:"OBJECTS" help:"List object versions under a path"`
	Delete   DeleteObjectCommand   `cmd:"" group:"OBJECTS" help:"Delete the resolved object version"`
	Truncate TruncateCommand       `cmd:"" group:"OBJECTS" help:"Delete every object version matching a path"`
}

type GetObjectCommand struct {
	Path string `arg:"" help:"Request path (e.g. detector/gains/1620000000000)"`
}

type DownloadObjectCommand struct {
	GetObjectCommand
	Output string `name:"output" short:"o" help:"Output file (defaults to stdout)" optional:""`
}

type UploadObjectCommand struct {
	Path  string            `arg:"" help:"Object path"`
	File  string            `arg:"" type:"path" help:"File to upload"`
	From  int64             `name:"from" required:"" help:"Validity start, epoch ms"`
	Until int64             `name:"until" required:"" help:"Validity end, epoch ms (exclusive)"`
	Meta  map[string]string `name:"meta" help:"Metadata key=value pairs" optional:""`
}

type BrowseObjectsCommand struct {
	Path   string `arg:"" help:"Path prefix" optional:"" default:""`
	Latest bool   `name:"latest" help:"Only the newest version per path"`
	Report bool   `name:"report" help:"Include per-path count and size aggregates"`
}

type DeleteObjectCommand struct {
	GetObjectCommand
}

type TruncateCommand struct {
	Path string `arg:"" help:"Path to truncate"`
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (cmd *GetObjectCommand) Run(app *Globals) error {
	c, err := app.Client()
	if err != nil {
		return err
	}
	object, err := c.Resolve(app.ctx, cmd.Path)
	if err != nil {
		return err
	}
	return prettyJSON(object)
}

func (cmd *DownloadObjectCommand) Run(app *Globals) error {
	c, err := app.Client()
	if err != nil {
		return err
	}

	w := os.Stdout
	if cmd.Output != "" {
		w, err = os.Create(cmd.Output)
		if err != nil {
			return err
		}
		defer w.Close()
	}

	_, err = c.Read(app.ctx, cmd.Path, func(chunk []byte) error {
		_, err := w.Write(chunk)
		return err
	})
	return err
}

func (cmd *UploadObjectCommand) Run(app *Globals) error {
	c, err := app.Client()
	if err != nil {
		return err
	}

	f, err := os.Open(cmd.File)
	if err != nil {
		return err
	}
	defer f.Close()

	object, err := c.Create(app.ctx, schema.CreateObjectRequest{
		Path:        strings.Trim(cmd.Path, "/"),
		Body:        f,
		ValidFrom:   cmd.From,
		ValidUntil:  cmd.Until,
		FileName:    filepath.Base(cmd.File),
		ContentType: mime.TypeByExtension(filepath.Ext(cmd.File)),
		Meta:        cmd.Meta,
	})
	if err != nil {
		return err
	}
	return prettyJSON(object)
}

func (cmd *BrowseObjectsCommand) Run(app *Globals) error {
	c, err := app.Client()
	if err != nil {
		return err
	}
	listing, err := c.Browse(app.ctx, cmd.Path, cmd.Latest, cmd.Report)
	if err != nil {
		return err
	}
	for _, child := range listing.Children {
		fmt.Println(child + "/")
	}
	for _, object := range listing.Objects {
		fmt.Printf("%s %s [%d, %d) %s\n", object.Id, object.Path, object.ValidFrom, object.ValidUntil, byteSize(object.Size))
	}
	for _, stat := range listing.Report {
		fmt.Printf("# %s objects=%d size=%s\n", stat.Path, stat.Count, byteSize(stat.Size))
	}
	return nil
}

func (cmd *DeleteObjectCommand) Run(app *Globals) error {
	c, err := app.Client()
	if err != nil {
		return err
	}
	return c.Delete(app.ctx, cmd.Path)
}

func (cmd *TruncateCommand) Run(app *Globals) error {
	c, err := app.Client()
	if err != nil {
		return err
	}
	deleted, err := c.Truncate(app.ctx, cmd.Path)
	if err != nil {
		return err
	}
	return prettyJSON(deleted)
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func prettyJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func byteSize(size int64) string {
	const unit = 1024
	if size < unit {
		return strconv.FormatInt(size, 10) + "B"
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(size)/float64(div), "KMGTPE"[exp])
}
