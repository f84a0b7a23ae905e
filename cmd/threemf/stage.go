package main

import (
	"context"
	"fmt"
	"os"

	"github.com/FocuswithJustin/threemf/core/cas"
	"github.com/FocuswithJustin/threemf/core/errors"
	"github.com/FocuswithJustin/threemf/core/opc"
	"github.com/FocuswithJustin/threemf/core/threemf"
	"github.com/FocuswithJustin/threemf/core/vlog"
	"github.com/FocuswithJustin/threemf/internal/logging"
)

// StageCmd replaces members with local files and writes the package back.
type StageCmd struct {
	File   string   `arg:"" help:"Package to modify" type:"existingfile"`
	Set    []string `short:"s" required:"" help:"Replacement as MEMBER=LOCALFILE (repeatable)"`
	Out    string   `short:"o" help:"Write to this path instead of overwriting the package" type:"path"`
	Verify bool     `help:"Check every member of the written package"`
	Backup string   `help:"Store the replaced members in this backup directory" type:"path"`
}

func (c *StageCmd) Run() error {
	doc, err := readForWrite(c.File)
	if err != nil {
		return err
	}
	for _, s := range c.Set {
		member, local, err := splitAssignment(s)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(local)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", local)
		}
		if err := doc.Stage(member, data); err != nil {
			return err
		}
	}
	if c.Backup != "" {
		if err := backupMembers(doc, c.Backup); err != nil {
			return err
		}
	}
	return commit(doc, c.Out, c.Verify)
}

// RestoreCmd stages members from a backup directory and writes the package
// back.
type RestoreCmd struct {
	File   string   `arg:"" help:"Package to modify" type:"existingfile"`
	Backup string   `required:"" help:"Backup directory written by stage --backup" type:"existingdir"`
	Set    []string `short:"s" required:"" help:"Restoration as MEMBER=HASH, SHA-256 or BLAKE3 (repeatable)"`
	Out    string   `short:"o" help:"Write to this path instead of overwriting the package" type:"path"`
	Verify bool     `help:"Check every member of the written package"`
}

func (c *RestoreCmd) Run() error {
	store, err := cas.NewStore(c.Backup)
	if err != nil {
		return err
	}
	doc, err := readForWrite(c.File)
	if err != nil {
		return err
	}
	for _, s := range c.Set {
		member, hash, err := splitAssignment(s)
		if err != nil {
			return err
		}
		data, err := store.Resolve(hash)
		if err != nil {
			return errors.Wrapf(err, "backup %s", hash)
		}
		if err := doc.Stage(member, data); err != nil {
			return err
		}
	}
	return commit(doc, c.Out, c.Verify)
}

// readForWrite reads a package that is about to be rewritten. Recoverable
// problems are logged but do not prevent the write.
func readForWrite(path string) (*threemf.Document, error) {
	doc, log, err := threemf.Read(path, threemf.WithLogger(logging.GetLogger()))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot rewrite %s", path)
	}
	if n := log.Count(vlog.SeverityError); n > 0 {
		logging.Warn("package has validation errors", "package", path, "errors", n)
	}
	return doc, nil
}

// backupMembers stores the current bytes of every staged member that
// already exists in the package.
func backupMembers(doc *threemf.Document, dir string) error {
	store, err := cas.NewStore(dir)
	if err != nil {
		return err
	}
	a, err := opc.Open(doc.Path())
	if err != nil {
		return err
	}
	defer a.Close()

	for _, name := range doc.Staged() {
		e, ok := a.Find(name)
		if !ok {
			continue
		}
		data, err := a.Read(e)
		if err != nil {
			return err
		}
		sum, err := store.Put(data)
		if err != nil {
			return errors.Wrapf(err, "backup %s", name)
		}
		fmt.Fprintf(stdout, "backup %s sha256:%s blake3:%s\n", name, sum.SHA256, sum.BLAKE3)
	}
	return nil
}

// commit writes doc and optionally checks the result member by member.
func commit(doc *threemf.Document, out string, verify bool) error {
	var before map[string]cas.HashResult
	if verify {
		var err error
		if before, err = memberDigests(doc.Path()); err != nil {
			return err
		}
	}

	dst := out
	if dst == "" {
		dst = doc.Path()
	}
	if err := doc.Write(out); err != nil {
		return err
	}
	staged := doc.Staged()
	logging.PackageWritten(context.Background(), doc.Path(), dst, len(staged))

	if verify {
		if err := verifyWrite(doc, before, dst); err != nil {
			return err
		}
	}
	fmt.Fprintf(stdout, "wrote %s (%d staged)\n", dst, len(staged))
	return nil
}

// memberDigests returns the digests of every file member of a package.
func memberDigests(path string) (map[string]cas.HashResult, error) {
	a, err := opc.Open(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	out := make(map[string]cas.HashResult)
	for _, e := range a.Entries() {
		if e.IsDir() {
			continue
		}
		rc, err := e.Open()
		if err != nil {
			return nil, err
		}
		sum, _, err := cas.SumReader(rc)
		rc.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "member %s", e.Name())
		}
		out[e.Name()] = sum
	}
	return out, nil
}

// verifyWrite checks that staged members carry their staged bytes and that
// every other member is unchanged.
func verifyWrite(doc *threemf.Document, before map[string]cas.HashResult, dst string) error {
	after, err := memberDigests(dst)
	if err != nil {
		return err
	}
	want := make(map[string]cas.HashResult, len(before))
	for name, sum := range before {
		want[name] = sum
	}
	for _, name := range doc.Staged() {
		data, _ := doc.StagedBytes(name)
		want[name] = cas.Sum(data)
	}

	if len(after) != len(want) {
		return fmt.Errorf("verify %s: %d members, want %d", dst, len(after), len(want))
	}
	for name, sum := range want {
		got, ok := after[name]
		if !ok {
			return fmt.Errorf("verify %s: member %s is missing", dst, name)
		}
		if !got.Equal(sum) {
			return fmt.Errorf("verify %s: member %s has digest %s, want %s", dst, name, got.SHA256, sum.SHA256)
		}
	}
	return nil
}
