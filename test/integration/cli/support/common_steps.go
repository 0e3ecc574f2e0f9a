package support

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/MeKo-Tech/pogocls/cmd/pogocls/cmd"
	"github.com/MeKo-Tech/pogocls/internal/testutil"
	"github.com/MeKo-Tech/pogocls/internal/utils"
	"github.com/cucumber/godog"
	"github.com/spf13/viper"
)

// RegisterCommonSteps registers command execution and file steps.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRun)
	sc.Step(`^a text-line image "([^"]*)" reading "([^"]*)"$`, testCtx.aTextLineImage)
	sc.Step(`^a flipped text-line image "([^"]*)" reading "([^"]*)"$`, testCtx.aFlippedTextLineImage)
	sc.Step(`^a file "([^"]*)" with content:$`, testCtx.aFileWithContent)
	sc.Step(`^an empty directory "([^"]*)"$`, testCtx.anEmptyDirectory)
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, testCtx.SetEnvStep)

	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the error should contain "([^"]*)"$`, testCtx.theErrorShouldContain)
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
}

// iRun executes a pogocls command line in-process. Arguments are split on
// whitespace; "{tmp}" expands to the scenario directory.
func (testCtx *TestContext) iRun(commandLine string) error {
	commandLine = strings.ReplaceAll(commandLine, "{tmp}", testCtx.TempDir)
	fields := strings.Fields(commandLine)
	if len(fields) == 0 || fields[0] != "pogocls" {
		return fmt.Errorf("expected a pogocls command, got %q", commandLine)
	}

	// flag bindings from a previous run must not leak into this one
	viper.Reset()

	root := cmd.NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(fields[1:])

	testCtx.LastCommand = commandLine
	testCtx.LastError = root.Execute()
	testCtx.LastOutput = stdout.String()
	testCtx.LastStderr = stderr.String()
	return nil
}

func (testCtx *TestContext) writeTextLine(name, text string, flipped bool) error {
	cfg := testutil.DefaultTextLineConfig()
	cfg.Text = text
	cfg.Flipped = flipped
	img, err := testutil.GenerateTextLine(cfg)
	if err != nil {
		return fmt.Errorf("failed to render text line: %w", err)
	}
	return utils.SaveImagePNG(testCtx.Path(name), img)
}

func (testCtx *TestContext) aTextLineImage(name, text string) error {
	return testCtx.writeTextLine(name, text, false)
}

func (testCtx *TestContext) aFlippedTextLineImage(name, text string) error {
	return testCtx.writeTextLine(name, text, true)
}

func (testCtx *TestContext) aFileWithContent(name string, content *godog.DocString) error {
	return os.WriteFile(testCtx.Path(name), []byte(content.Content), 0o600)
}

func (testCtx *TestContext) anEmptyDirectory(name string) error {
	return os.MkdirAll(testCtx.Path(name), 0o750)
}

// SetEnvStep sets an environment variable for the scenario.
func (testCtx *TestContext) SetEnvStep(name, value string) error {
	testCtx.SetEnv(name, value)
	return nil
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastError != nil {
		return fmt.Errorf("command %q failed: %w\nstderr: %s", testCtx.LastCommand, testCtx.LastError, testCtx.LastStderr)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastError == nil {
		return fmt.Errorf("command %q succeeded but was expected to fail", testCtx.LastCommand)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContain(expected string) error {
	if !strings.Contains(testCtx.LastOutput, expected) {
		return fmt.Errorf("output does not contain %q\noutput: %s", expected, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(unexpected string) error {
	if strings.Contains(testCtx.LastOutput, unexpected) {
		return fmt.Errorf("output unexpectedly contains %q\noutput: %s", unexpected, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	if !json.Valid([]byte(strings.TrimSpace(testCtx.LastOutput))) {
		return fmt.Errorf("output is not valid JSON: %s", testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theErrorShouldContain(expected string) error {
	if testCtx.LastError == nil {
		return errors.New("expected an error, command succeeded")
	}
	if !strings.Contains(testCtx.LastError.Error(), expected) {
		return fmt.Errorf("error %q does not contain %q", testCtx.LastError, expected)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldExist(name string) error {
	if !testutil.FileExists(testCtx.Path(name)) {
		return fmt.Errorf("file %s does not exist", name)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldContain(name, expected string) error {
	data, err := os.ReadFile(testCtx.Path(name))
	if err != nil {
		return err
	}
	if !strings.Contains(string(data), expected) {
		return fmt.Errorf("file %s does not contain %q", name, expected)
	}
	return nil
}
