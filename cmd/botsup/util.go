package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorReset  = "\033[0m"
)

func (c command) paint(code string) string {
	if c.g.NoColor {
		return ""
	}
	return code
}

func (c command) successf(format string, a ...any) {
	fmt.Printf("\n%s✓  %s%s\n", c.paint(colorGreen+colorBold), fmt.Sprintf(format, a...), c.paint(colorReset))
}

func (c command) infof(format string, a ...any) {
	fmt.Printf("\n%s●  %s%s\n", c.paint(colorCyan), fmt.Sprintf(format, a...), c.paint(colorReset))
}

func (c command) warnf(format string, a ...any) {
	fmt.Printf("\n%s⚠  %s%s\n", c.paint(colorYellow+colorBold), fmt.Sprintf(format, a...), c.paint(colorReset))
}

func (c command) dimf(format string, a ...any) {
	fmt.Printf("%s%s%s\n", c.paint(colorDim), fmt.Sprintf(format, a...), c.paint(colorReset))
}

// confirm asks a yes/no question and accepts only an explicit y/Y.
func confirm(in io.Reader, prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(in)
	answer, _ := reader.ReadString('\n')
	answer = strings.TrimSpace(answer)
	return answer == "y" || answer == "Y"
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
