package main

import (
	"context"
	"fmt"

	echoapi "github.com/trezcool/feeportal/apps/api/echo"
	"github.com/trezcool/feeportal/core/ledger"
	"github.com/trezcool/feeportal/core/student"
)

// addStudent enrolls the student and seeds their ledger for every academic year.
func (cli *commandLine) addStudent(ns student.NewStudent) error {
	s, err := cli.ledger.Enroll(context.Background(), ns)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "student %s (%s) enrolled in %s %s\n", s.StudentID, s.Name, s.Course, s.Branch)
	return nil
}

func (cli *commandLine) addFee(ne ledger.NewCatalogEntry) error {
	entry, err := cli.ledger.AddCatalogEntry(context.Background(), ne)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "fee %q added: %s %d\n", entry.Name, cli.conf.Fees.Currency, entry.Amount)
	return nil
}

func (cli *commandLine) removeFee(name, pin, branch, year, fee string) error {
	if err := cli.ledger.RemoveFeeByIdentity(context.Background(), cli.students, name, pin, branch, year, fee); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "fee %q removed for %s\n", fee, year)
	return nil
}

func (cli *commandLine) issueToken(adminID, adminName, studentID string) error {
	var claims *echoapi.Claims
	if adminID != "" {
		claims = echoapi.GetAdminClaims(adminID, adminName, cli.conf)
	} else {
		s, err := cli.students.GetByStudentID(context.Background(), studentID)
		if err != nil {
			return err
		}
		claims = echoapi.GetStudentClaims(s, cli.conf)
	}
	token, err := echoapi.GenerateToken(claims, cli.conf.SecretKey)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cli.out, token)
	return nil
}
