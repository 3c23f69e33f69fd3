package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sofmeright/verbuild/src/build"
)

// CI environment detection.

func IsCI() bool {
	return os.Getenv("CI") == "true"
}

func IsGitLabCI() bool {
	return os.Getenv("GITLAB_CI") == "true"
}

// GitLab collapsible section helpers.

func SectionStart(w io.Writer, id, name string) {
	if !IsGitLabCI() {
		return
	}
	fmt.Fprintf(w, "\033[0Ksection_start:%d:%s\r\033[0K%s\n", time.Now().Unix(), id, name)
}

func SectionEnd(w io.Writer, id string) {
	if !IsGitLabCI() {
		return
	}
	fmt.Fprintf(w, "\033[0Ksection_end:%d:%s\r\033[0K\n", time.Now().Unix(), id)
}

// SectionStartCollapsed starts a section that is collapsed by default.
func SectionStartCollapsed(w io.Writer, id, name string) {
	if !IsGitLabCI() {
		return
	}
	fmt.Fprintf(w, "\033[0Ksection_start:%d:%s[collapsed=true]\r\033[0K%s\n", time.Now().Unix(), id, name)
}

// JUnit XML types for CI test reporting.

type JUnitTestSuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Name     string           `xml:"name,attr"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Skipped  int              `xml:"skipped,attr"`
	Time     string           `xml:"time,attr"`
	Suites   []JUnitTestSuite `xml:"testsuite"`
}

type JUnitTestSuite struct {
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Skipped  int             `xml:"skipped,attr"`
	Time     string          `xml:"time,attr"`
	Cases    []JUnitTestCase `xml:"testcase"`
}

type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// BuildJUnit converts a build report into a single suite of one test case
// per version.
func BuildJUnit(report *build.Report) JUnitTestSuites {
	suite := JUnitTestSuite{
		Name: "verbuild/build",
		Time: seconds(report.Duration),
	}
	for _, step := range report.Steps {
		tc := JUnitTestCase{
			Name:      step.Name,
			Classname: "verbuild.build",
			Time:      seconds(step.Duration),
		}
		if step.Revision != nil {
			tc.SystemOut = fmt.Sprintf("%s @ %s", step.Ref, step.Revision.Hash)
		}
		switch step.Status {
		case build.StatusFailed:
			msg := "build failed"
			if step.Error != nil {
				msg = step.Error.Error()
			}
			typ := "build"
			if step.Revision == nil {
				typ = "checkout"
			}
			tc.Failure = &JUnitFailure{
				Message: msg,
				Type:    typ,
				Body:    strings.Join(build.Tail(step.Log, 50), "\n"),
			}
			suite.Failures++
		case build.StatusSkipped:
			tc.Skipped = &JUnitSkipped{Message: "not attempted"}
			suite.Skipped++
		case build.StatusCancelled:
			tc.Skipped = &JUnitSkipped{Message: "cancelled"}
			suite.Skipped++
		}
		suite.Cases = append(suite.Cases, tc)
		suite.Tests++
	}

	return JUnitTestSuites{
		Name:     "verbuild",
		Tests:    suite.Tests,
		Failures: suite.Failures,
		Skipped:  suite.Skipped,
		Time:     suite.Time,
		Suites:   []JUnitTestSuite{suite},
	}
}

// WriteBuildJUnit writes report as dir/build.xml for CI test reporting.
func WriteBuildJUnit(dir string, report *build.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}

	path := filepath.Join(dir, "build.xml")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.WriteString(f, xml.Header); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(BuildJUnit(report)); err != nil {
		return fmt.Errorf("encoding junit xml: %w", err)
	}
	if _, err := io.WriteString(f, "\n"); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
