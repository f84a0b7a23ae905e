package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/FocuswithJustin/threemf/core/cas"
	"github.com/FocuswithJustin/threemf/core/errors"
	"github.com/FocuswithJustin/threemf/core/opc"
	"github.com/FocuswithJustin/threemf/core/threemf"
	"github.com/FocuswithJustin/threemf/internal/archive"
	"github.com/FocuswithJustin/threemf/internal/logging"
)

// ContentsCmd prints the first member matching a glob.
type ContentsCmd struct {
	File    string `arg:"" help:"Package to read" type:"existingfile"`
	Pattern string `arg:"" help:"Member glob, ** matches across directories"`
	Out     string `short:"o" help:"Write the bytes to this file instead of stdout" type:"path"`
}

func (c *ContentsCmd) Run() error {
	doc, _, err := threemf.Read(c.File, threemf.WithLogger(logging.GetLogger()))
	if err != nil {
		return err
	}
	data, err := doc.ContentsFor(c.Pattern)
	if err != nil {
		return err
	}
	if c.Out != "" {
		return os.WriteFile(c.Out, data, 0644)
	}
	_, err = stdout.Write(data)
	return err
}

// MembersCmd lists package members.
type MembersCmd struct {
	File string `arg:"" help:"Package to list" type:"existingfile"`
	JSON bool   `help:"Print members as JSON"`
}

type memberRow struct {
	archive.MemberInfo
	ContentType string `json:"content_type,omitempty"`
}

func (c *MembersCmd) Run() error {
	rows, err := listMembers(c.File)
	if err != nil {
		return err
	}
	if c.JSON {
		return encodeJSON(rows)
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tCONTENT TYPE\tSHA256")
	for _, r := range rows {
		ct := r.ContentType
		if ct == "" {
			ct = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", r.Name, r.Size, ct, r.SHA256)
	}
	return w.Flush()
}

func listMembers(path string) ([]memberRow, error) {
	a, err := opc.Open(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	var types *opc.ContentTypes
	if e, ok := a.Find(opc.ContentTypesPath); ok {
		data, err := a.Read(e)
		if err != nil {
			return nil, err
		}
		// A broken manifest still lets the members be listed.
		types, _, _ = opc.ParseContentTypes(data, opc.ContentTypesPath)
	}

	rows := []memberRow{}
	for _, e := range a.Entries() {
		if e.IsDir() {
			continue
		}
		rc, err := e.Open()
		if err != nil {
			return nil, err
		}
		sum, n, err := cas.SumReader(rc)
		rc.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "member %s", e.Name())
		}
		row := memberRow{MemberInfo: archive.MemberInfo{Name: e.Name(), Size: n, HashResult: sum}}
		if e.Name() != opc.ContentTypesPath {
			row.ContentType, _ = types.Lookup(e.Name())
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ExportCmd writes package members to a compressed tar.
type ExportCmd struct {
	File   string `arg:"" help:"Package to export" type:"existingfile"`
	Out    string `short:"o" required:"" help:"Destination .tar.gz or .tar.xz" type:"path"`
	Verify bool   `help:"Check the written archive against its manifest"`
}

func (c *ExportCmd) Run() error {
	if !archive.IsSupportedFormat(c.Out) {
		return errors.NewUnsupported("archive format", c.Out)
	}
	m, err := archive.Export(c.File, c.Out)
	if err != nil {
		return err
	}
	if c.Verify {
		if _, err := archive.Verify(c.Out); err != nil {
			return err
		}
	}
	fmt.Fprintf(stdout, "exported %d members to %s\n", len(m.Members), c.Out)
	return nil
}
