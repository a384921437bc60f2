package itineraries

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

// ErrDayPlanNotFound is returned when no day-plan file can be selected or read.
var ErrDayPlanNotFound = errors.New("day plan not found")

// PackageInfo is the header row of a day-plan file.
type PackageInfo struct {
	Name       string
	Duration   string
	Hotel      string
	Inclusions []string
}

// Activity is one timed entry of a day.
type Activity struct {
	Time     string
	Activity string
}

// Day groups the activities of one itinerary day.
type Day struct {
	Day   string
	Items []Activity
}

// DayPlan is a parsed day-plan file.
type DayPlan struct {
	Source  string
	Package PackageInfo
	Days    []Day
}

// Library selects and parses day-plan CSV files from a directory of fsys.
type Library struct {
	fsys fs.FS
	dir  string
}

// NewLibrary constructs a Library over dir in fsys.
func NewLibrary(fsys fs.FS, dir string) *Library {
	return &Library{fsys: fsys, dir: dir}
}

// Files lists the available day-plan names without extension, sorted.
func (l *Library) Files() ([]string, error) {
	entries, err := fs.ReadDir(l.fsys, l.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDayPlanNotFound, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(path.Ext(e.Name()), ".csv") {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
	}
	sort.Strings(out)
	return out, nil
}

// Select picks a day-plan: a file whose name the enquiry id contains, then a file
// named by a destination keyword, then the first available file.
func (l *Library) Select(enquiryID, destination string) (string, error) {
	files, err := l.Files()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", ErrDayPlanNotFound
	}
	id := strings.ToLower(enquiryID)
	for _, f := range files {
		if id != "" && strings.Contains(id, strings.ToLower(f)) {
			return f, nil
		}
	}
	dest := strings.ToLower(destination)
	for _, f := range files {
		if dest != "" && strings.Contains(dest, strings.ToLower(f)) {
			return f, nil
		}
	}
	return files[0], nil
}

// Load selects and parses a day-plan.
func (l *Library) Load(enquiryID, destination string) (DayPlan, error) {
	name, err := l.Select(enquiryID, destination)
	if err != nil {
		return DayPlan{}, err
	}
	f, err := l.fsys.Open(path.Join(l.dir, name+".csv"))
	if err != nil {
		return DayPlan{}, fmt.Errorf("%w: %v", ErrDayPlanNotFound, err)
	}
	defer f.Close()
	plan, err := ParseDayPlan(f)
	if err != nil {
		return DayPlan{}, err
	}
	plan.Source = name
	return plan, nil
}

// ParseDayPlan reads a package header block followed by Day,Time,Activity rows.
func ParseDayPlan(r io.Reader) (DayPlan, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return DayPlan{}, fmt.Errorf("parse day plan: %w", err)
	}
	var (
		plan      DayPlan
		inDays    bool
		seenPkg   bool
		dayIndex  = make(map[string]int)
		skipFirst = true
	)
	for _, rec := range records {
		if isBlank(rec) {
			continue
		}
		if skipFirst {
			skipFirst = false
			if isHeader(rec, "package name") {
				continue
			}
		}
		if isHeader(rec, "day") {
			inDays = true
			continue
		}
		if !inDays {
			if seenPkg {
				continue
			}
			plan.Package = PackageInfo{
				Name:       field(rec, 0),
				Duration:   field(rec, 1),
				Hotel:      field(rec, 2),
				Inclusions: splitInclusions(field(rec, 3)),
			}
			seenPkg = true
			continue
		}
		day := field(rec, 0)
		if day == "" {
			continue
		}
		idx, ok := dayIndex[day]
		if !ok {
			plan.Days = append(plan.Days, Day{Day: day})
			idx = len(plan.Days) - 1
			dayIndex[day] = idx
		}
		plan.Days[idx].Items = append(plan.Days[idx].Items, Activity{Time: field(rec, 1), Activity: field(rec, 2)})
	}
	if !seenPkg && len(plan.Days) == 0 {
		return DayPlan{}, fmt.Errorf("%w: empty file", ErrDayPlanNotFound)
	}
	sort.SliceStable(plan.Days, func(i, j int) bool { return dayLess(plan.Days[i].Day, plan.Days[j].Day) })
	return plan, nil
}

func dayLess(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return false
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func isHeader(rec []string, first string) bool {
	return strings.EqualFold(strings.TrimSpace(field(rec, 0)), first)
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func splitInclusions(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
