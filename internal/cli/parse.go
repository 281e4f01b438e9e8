package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ledger/internal/core"
	"ledger/internal/format"
	"ledger/internal/server"
)

// Invocation is a parsed command line.
type Invocation struct {
	Command    server.Command
	ConfigPath string
	Verbose    bool
	Params     server.Params
	// FilterItems are the raw key=value list filters, converted by
	// Preprocess.
	FilterItems  []string
	EntrySort    string
	CategorySort string
}

// ErrUsage reports a command line that could not be parsed. The flag
// package has already printed the details.
var ErrUsage = errors.New("usage error")

const usage = `usage: ledger <command> [options]

commands:
  add NAME VALUE    add an entry
  get EID           show a single entry
  update EID        update fields of an entry
  remove EID        remove an entry
  copy EID          copy an entry from one period to another
  list              list the entries of a period
  periods           list all periods

Run 'ledger <command> -h' for the options of a command.
`

// Parse reads a command line, without the program name.
func Parse(args []string, stderr io.Writer) (Invocation, error) {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return Invocation{}, ErrUsage
	}
	if args[0] == "-h" || args[0] == "-help" || args[0] == "--help" {
		fmt.Fprint(stderr, usage)
		return Invocation{}, flag.ErrHelp
	}

	inv := Invocation{Command: server.Command(args[0])}
	fs := flag.NewFlagSet("ledger "+args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&inv.ConfigPath, "C", "", "path to a dotenv config file")
	fs.StringVar(&inv.ConfigPath, "config-filepath", "", "path to a dotenv config file")
	fs.BoolVar(&inv.Verbose, "verbose", false, "be verbose about internal workings")

	p := &inv.Params
	var positional []string
	switch inv.Command {
	case server.CmdAdd:
		positional = []string{"NAME", "VALUE"}
		tableFlag(fs, p)
		entryFlags(fs, p, false)
	case server.CmdGet, server.CmdRemove:
		positional = []string{"EID"}
		tableFlag(fs, p)
	case server.CmdUpdate:
		positional = []string{"EID"}
		tableFlag(fs, p)
		entryFlags(fs, p, true)
	case server.CmdCopy:
		positional = []string{"EID"}
		tableFlag(fs, p)
		fs.StringVar(&p.SourcePeriod, "s", "", "period to copy the entry from")
		fs.StringVar(&p.SourcePeriod, "source", "", "period to copy the entry from")
		fs.StringVar(&p.DestinationPeriod, "d", "", "period to copy the entry to")
		fs.StringVar(&p.DestinationPeriod, "destination", "", "period to copy the entry to")
	case server.CmdList:
		appendItem := func(s string) error {
			inv.FilterItems = append(inv.FilterItems, s)
			return nil
		}
		fs.Func("f", "filter as key=value on name, date or category; repeatable", appendItem)
		fs.Func("filters", "filter as key=value on name, date or category; repeatable", appendItem)
		fs.StringVar(&inv.EntrySort, "entry-sort", "name", "entry sort key: one of "+strings.Join(format.EntrySortKeys, ", "))
		fs.StringVar(&inv.CategorySort, "category-sort", "name", "category sort key: one of "+strings.Join(format.CategorySortKeys, ", "))
	case server.CmdPeriods:
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return Invocation{}, ErrUsage
	}
	if inv.Command != server.CmdCopy && inv.Command != server.CmdPeriods {
		fs.StringVar(&p.Period, "p", "", "name of the period to modify or query")
		fs.StringVar(&p.Period, "period", "", "name of the period to modify or query")
	}
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: ledger %s", inv.Command)
		for _, name := range positional {
			fmt.Fprintf(fs.Output(), " %s", name)
		}
		fmt.Fprintln(fs.Output(), " [options]")
		fs.PrintDefaults()
	}

	rest, err := parseInterspersed(fs, args[1:])
	if err != nil {
		return Invocation{}, err
	}
	if inv.Command == server.CmdList {
		// Bare key=value items after the flags are filters too.
		inv.FilterItems = append(inv.FilterItems, rest...)
		rest = nil
	}
	if len(rest) != len(positional) {
		fmt.Fprintf(stderr, "expected %d argument(s), got %d\n", len(positional), len(rest))
		fs.Usage()
		return Invocation{}, ErrUsage
	}

	switch inv.Command {
	case server.CmdAdd:
		name := rest[0]
		value, err := core.ParseValue(rest[1])
		if err != nil {
			fmt.Fprintf(stderr, "invalid value %q\n", rest[1])
			return Invocation{}, ErrUsage
		}
		p.Name, p.Value = &name, &value
	case server.CmdGet, server.CmdRemove, server.CmdUpdate, server.CmdCopy:
		eid, err := strconv.Atoi(rest[0])
		if err != nil || eid <= 0 {
			fmt.Fprintf(stderr, "invalid element ID %q\n", rest[0])
			return Invocation{}, ErrUsage
		}
		p.EID = eid
	}
	return inv, nil
}

// parseInterspersed lets positional arguments and flags appear in any
// order. A negative number is a positional value, never a flag.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		for len(args) > 0 && isNumber(args[0]) {
			positional = append(positional, args[0])
			args = args[1:]
		}
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func isNumber(s string) bool {
	_, err := core.ParseValue(s)
	return err == nil
}

func tableFlag(fs *flag.FlagSet, p *server.Params) {
	fs.StringVar(&p.TableName, "t", "", "table of the entry: standard or recurrent (default standard)")
	fs.StringVar(&p.TableName, "table-name", "", "table of the entry: standard or recurrent (default standard)")
}

// entryFlags registers the optional entry attributes. A flag that is
// not given leaves its field nil.
func entryFlags(fs *flag.FlagSet, p *server.Params, update bool) {
	str := func(dst **string) func(string) error {
		return func(s string) error {
			*dst = &s
			return nil
		}
	}
	both := func(short, long, help string, fn func(string) error) {
		fs.Func(short, help, fn)
		fs.Func(long, help, fn)
	}
	if update {
		both("n", "name", "new name", str(&p.Name))
		both("v", "value", "new value", func(s string) error {
			v, err := core.ParseValue(s)
			if err != nil {
				return err
			}
			p.Value = &v
			return nil
		})
	}
	both("c", "category", "entry category", str(&p.Category))
	both("d", "date", "entry date (standard entries only)", str(&p.Date))
	both("f", "frequency", "frequency of a recurrent entry: yearly, half-yearly, quarterly, monthly, weekly or daily", str(&p.Frequency))
	both("s", "start", "start date of a recurrent entry", str(&p.Start))
	both("e", "end", "end date of a recurrent entry", str(&p.End))
}
