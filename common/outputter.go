package common

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"
)

const jsonOutputFlag = "json"

// ICommandResult is implemented by every cli command result type.
type ICommandResult interface {
	GetOutput() string
}

type OutputFormatter interface {
	SetError(err error)
	SetCommandResult(result ICommandResult)
	WriteOutput()
}

func RegisterOutputterFlags(cmd *cobra.Command) {
	cmd.Flags().Bool(jsonOutputFlag, false, "get command results in json format")
}

func InitializeOutputter(cmd *cobra.Command) OutputFormatter {
	useJSON, _ := cmd.Flags().GetBool(jsonOutputFlag)
	if useJSON {
		return &jsonOutputter{writer: os.Stdout}
	}

	return &textOutputter{writer: os.Stdout}
}

// FormatKV formats key/value rows with aligned columns.
func FormatKV(in []string) string {
	columnConf := columnize.DefaultConfig()
	columnConf.Empty = "<none>"
	columnConf.Glue = " = "

	return columnize.Format(in, columnConf)
}

type textOutputter struct {
	writer io.Writer
	err    error
	result ICommandResult
}

var _ OutputFormatter = (*textOutputter)(nil)

func (o *textOutputter) SetError(err error) {
	o.err = err
}

func (o *textOutputter) SetCommandResult(result ICommandResult) {
	o.result = result
}

func (o *textOutputter) WriteOutput() {
	if o.err != nil {
		_, _ = fmt.Fprintf(o.writer, "Error: %v\n", o.err)

		return
	}

	if o.result != nil {
		_, _ = fmt.Fprintln(o.writer, o.result.GetOutput())
	}
}

type jsonOutputter struct {
	writer io.Writer
	err    error
	result ICommandResult
}

var _ OutputFormatter = (*jsonOutputter)(nil)

func (o *jsonOutputter) SetError(err error) {
	o.err = err
}

func (o *jsonOutputter) SetCommandResult(result ICommandResult) {
	o.result = result
}

func (o *jsonOutputter) WriteOutput() {
	if o.err != nil {
		data, _ := json.Marshal(map[string]string{"error": o.err.Error()})
		_, _ = o.writer.Write(append(data, '\n'))

		return
	}

	if o.result != nil {
		data, _ := json.Marshal(o.result)
		_, _ = o.writer.Write(append(data, '\n'))
	}
}
