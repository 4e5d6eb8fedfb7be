package metadata

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const tsv = "strain\tdate\tregion\n" +
	"strain1\t2020-01-01\tAfrica\n" +
	"strain2\t2020-02-01\tEurope\n"

func TestParseTSV(t *testing.T) {
	table, err := Parse([]byte(tsv), nil)
	if err != nil {
		t.Fatal(err)
	}

	if table.IDColumn != "strain" {
		t.Errorf("id column = %q, want strain", table.IDColumn)
	}
	if table.Delim != '\t' {
		t.Errorf("delimiter = %q, want tab", table.Delim)
	}
	if len(table.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(table.Records))
	}

	first := table.Records[0]
	if first.Strain != "strain1" {
		t.Errorf("first strain = %q", first.Strain)
	}
	if first.Attributes["region"] != "Africa" || first.Attributes["date"] != "2020-01-01" {
		t.Errorf("first attributes = %v", first.Attributes)
	}
	if _, ok := first.Attributes["strain"]; ok {
		t.Error("the id column should not be repeated in Attributes")
	}
}

func TestParseCSVDelimiterDetected(t *testing.T) {
	csvContent := "strain,date,region\nstrain1,2020-01-01,Africa\nstrain2,2020-02-01,Europe\n"

	table, err := Parse([]byte(csvContent), nil)
	if err != nil {
		t.Fatal(err)
	}
	if table.Delim != ',' {
		t.Errorf("delimiter = %q, want comma", table.Delim)
	}
	if table.Records[1].Attributes["region"] != "Europe" {
		t.Errorf("records = %v", table.Records)
	}
}

func TestParseIDColumnFallback(t *testing.T) {
	content := "name\tregion\nstrain1\tAfrica\n"

	table, err := Parse([]byte(content), nil)
	if err != nil {
		t.Fatal(err)
	}
	if table.IDColumn != "name" {
		t.Errorf("id column = %q, want name", table.IDColumn)
	}
}

func TestParseIDColumnPriorityOrder(t *testing.T) {
	content := "name\tstrain\nleft1\tright1\n"

	table, err := Parse([]byte(content), []string{"strain", "name"})
	if err != nil {
		t.Fatal(err)
	}
	if table.IDColumn != "strain" {
		t.Errorf("id column = %q, want strain (first candidate wins)", table.IDColumn)
	}
	if table.Records[0].Strain != "right1" {
		t.Errorf("strain = %q, want right1", table.Records[0].Strain)
	}
}

func TestParseNoIDColumn(t *testing.T) {
	if _, err := Parse([]byte("region\tdate\nAfrica\t2020\n"), nil); err == nil {
		t.Fatal("expected an error when no id column candidate exists")
	}
}

func TestParseDuplicateID(t *testing.T) {
	content := "strain\tregion\nstrain1\tAfrica\nstrain1\tEurope\n"

	_, err := Parse([]byte(content), nil)
	if err == nil {
		t.Fatal("expected an error for duplicate strain ids")
	}
	if !strings.Contains(err.Error(), "strain1") {
		t.Errorf("error should name the duplicate id, got: %v", err)
	}
}

func TestReadGzippedMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.tsv.gz")

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(tsv)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := Read(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Records) != 2 {
		t.Errorf("got %d records from the gzipped file, want 2", len(table.Records))
	}
}

func TestReadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.tsv")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Read(path, nil)
	if err == nil {
		t.Fatal("expected an error for an empty file")
	}
	if !strings.Contains(err.Error(), "empty file") {
		t.Errorf("error should say the file is empty, got: %v", err)
	}
}

func TestStrains(t *testing.T) {
	table, err := Parse([]byte(tsv), nil)
	if err != nil {
		t.Fatal(err)
	}

	strains := table.Strains()
	if len(strains) != 2 || strains[0] != "strain1" || strains[1] != "strain2" {
		t.Errorf("strains = %v", strains)
	}
}

func TestWriteSubset(t *testing.T) {
	table, err := Parse([]byte(tsv), nil)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := table.WriteSubset(&buf, map[string]bool{"strain2": true}); err != nil {
		t.Fatal(err)
	}

	want := "strain\tdate\tregion\nstrain2\t2020-02-01\tEurope\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}
