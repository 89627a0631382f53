package analysis

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pdok/skmosaic/spaceknow"
)

var ErrNoScenes = errors.New("no imagery found for selected area")

// Prompter asks the user to choose scenes
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Select lists the scenes and asks for an index, or "all". Invalid input is asked again.
func (p *Prompter) Select(scenes []spaceknow.Scene) ([]spaceknow.Scene, error) {
	if len(scenes) == 0 {
		return nil, ErrNoScenes
	}
	fmt.Fprintln(p.out, "# Found imagery:")
	for i, s := range scenes {
		fmt.Fprintf(p.out, "   %d) %s\n", i, s.Title())
	}
	for {
		fmt.Fprint(p.out, "Select imagery for analysis, enter index above or 'all' for all imagery: ")
		line, err := p.in.ReadString('\n')
		answer := strings.TrimSpace(line)
		if answer == "" && err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("no imagery selected")
			}
			return nil, err
		}
		if answer == "all" {
			return scenes, nil
		}
		index, convErr := strconv.Atoi(answer)
		if convErr != nil || strings.HasPrefix(answer, "-") || strings.HasPrefix(answer, "+") {
			fmt.Fprintln(p.out, "Invalid index, you have to insert a number.")
			continue
		}
		if index >= len(scenes) {
			fmt.Fprintf(p.out, "Invalid index, insert number >= 0 and < %d.\n", len(scenes))
			continue
		}
		return scenes[index : index+1], nil
	}
}

// SelectByID picks the scenes with the given ids, in the order given.
func SelectByID(scenes []spaceknow.Scene, ids []string) ([]spaceknow.Scene, error) {
	if len(scenes) == 0 {
		return nil, ErrNoScenes
	}
	byID := make(map[string]spaceknow.Scene, len(scenes))
	for _, s := range scenes {
		byID[s.SceneID] = s
	}
	selected := make([]spaceknow.Scene, 0, len(ids))
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("scene %q is not among the found imagery", id)
		}
		selected = append(selected, s)
	}
	return selected, nil
}
