package identity

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"math/rand"
)

//go:embed names/*.txt
var nameFiles embed.FS

// NameBook draws random consumer names from the embedded Finnish name lists.
type NameBook struct {
	male   []string
	female []string
	last   []string
}

// LoadNameBook reads the embedded name lists once.
func LoadNameBook() (*NameBook, error) {
	male, err := readLines("names/firstnames_male.txt")
	if err != nil {
		return nil, err
	}
	female, err := readLines("names/firstnames_female.txt")
	if err != nil {
		return nil, err
	}
	last, err := readLines("names/lastnames.txt")
	if err != nil {
		return nil, err
	}
	return &NameBook{male: male, female: female, last: last}, nil
}

// PersonName returns a random "First Last" consumer name.
func (b *NameBook) PersonName(r *rand.Rand) string {
	var first string
	if r.Intn(2) == 0 {
		first = b.male[r.Intn(len(b.male))]
	} else {
		first = b.female[r.Intn(len(b.female))]
	}
	return first + " " + b.last[r.Intn(len(b.last))]
}

func readLines(path string) ([]string, error) {
	data, err := nameFiles.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read name list %s: %w", path, err)
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("name list %s is empty", path)
	}
	return lines, nil
}
