package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/feeportal/core"
	"github.com/trezcool/feeportal/core/ledger"
	"github.com/trezcool/feeportal/core/student"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf     *core.Config
	db       *sqlx.DB
	students *student.Service
	ledger   *ledger.Service
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                                  - run a goose command (up, down, status, ...)")
	_, _ = fmt.Fprintln(cli.out, "  addstudent -id ID -pin PIN -name NAME -branch BRANCH -mobile MOBILE [-course COURSE]")
	_, _ = fmt.Fprintln(cli.out, "                                                          - enroll a student; the password will be prompted")
	_, _ = fmt.Fprintln(cli.out, "  addfee -name NAME -amount AMOUNT [-description DESC]    - add a fee to the catalog")
	_, _ = fmt.Fprintln(cli.out, "  removefee -name NAME -pin PIN -branch BRANCH -year YEAR -fee FEE")
	_, _ = fmt.Fprintln(cli.out, "                                                          - remove a fee from a student's ledger")
	_, _ = fmt.Fprintln(cli.out, "  token -admin ID -name NAME | -student ID                - issue an API token")
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addstudent":
		cmd := newFlagSet("addstudent", cli.out)
		var ns student.NewStudent
		cmd.StringVar(&ns.StudentID, "id", "", "The student id (unique).")
		cmd.StringVar(&ns.Pin, "pin", "", "The student PIN (unique).")
		cmd.StringVar(&ns.Name, "name", "", "The student's full name.")
		cmd.StringVar(&ns.Course, "course", student.DefaultCourse, "The student's course.")
		cmd.StringVar(&ns.Branch, "branch", "", "The student's branch (eg. CSE).")
		cmd.StringVar(&ns.Mobile, "mobile", "", "The student's 10 digits mobile number.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if ns.StudentID == "" || ns.Pin == "" || ns.Name == "" || ns.Branch == "" || ns.Mobile == "" {
			cmd.Usage()
			return errHelp
		}
		_, _ = fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		_, _ = fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			cmd.Usage()
			return errHelp
		}
		ns.Password = string(pwd)
		return cli.addStudent(ns)

	case "addfee":
		cmd := newFlagSet("addfee", cli.out)
		var ne ledger.NewCatalogEntry
		cmd.StringVar(&ne.Name, "name", "", "The fee name (unique).")
		cmd.StringVar(&ne.Description, "description", "", "What the fee is for.")
		cmd.Int64Var(&ne.Amount, "amount", 0, "The yearly amount.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if ne.Name == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.addFee(ne)

	case "removefee":
		cmd := newFlagSet("removefee", cli.out)
		name := cmd.String("name", "", "The student's name.")
		pin := cmd.String("pin", "", "The student's PIN.")
		branch := cmd.String("branch", "", "The student's branch.")
		year := cmd.String("year", "", "The academic year (eg. 2024-25).")
		fee := cmd.String("fee", "", "The fee name.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *name == "" || *pin == "" || *branch == "" || *year == "" || *fee == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.removeFee(*name, *pin, *branch, *year, *fee)

	case "token":
		cmd := newFlagSet("token", cli.out)
		adminID := cmd.String("admin", "", "The admin id.")
		adminName := cmd.String("name", "", "The admin's name.")
		studentID := cmd.String("student", "", "The student id.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if (*adminID == "") == (*studentID == "") {
			cmd.Usage()
			return errHelp
		}
		return cli.issueToken(*adminID, *adminName, *studentID)

	default:
		cli.printUsage()
		return errHelp
	}
}
