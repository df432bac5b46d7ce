package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hazyhaar/capwatch/internal/config"
)

func runList(ctx context.Context, o options) error {
	if o.dbPath == "" {
		return errors.New("-list needs -db")
	}
	db, err := config.OpenDB(o.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := config.ListMeetings(ctx, db)
	if err != nil {
		return err
	}
	fmt.Println(renderMeetings(rows))
	return nil
}

func runAdd(ctx context.Context, o options) error {
	if o.dbPath == "" || o.singleURL == "" {
		return errors.New("-add needs -db and -url")
	}
	db, err := config.OpenDB(o.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	m := config.MeetingConfig{ID: o.add, URL: o.singleURL, TargetLanguage: o.lang, VoiceID: o.voice}
	if err := config.SaveMeeting(ctx, db, m); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "saved meeting %s\n", o.add)
	return nil
}

func renderMeetings(rows []config.DBMeeting) string {
	if len(rows) == 0 {
		return "no meetings"
	}
	title := cases.Title(language.Und)
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "URL", "Lang", "Voice", "Auto", "Status", "Updated"})
	for _, m := range rows {
		auto := ""
		if m.AutoStart {
			auto = "yes"
		}
		tw.AppendRow(table.Row{
			m.ID, m.URL, m.TargetLanguage, m.VoiceID, auto,
			title.String(m.Status),
			m.UpdatedAt.Format(time.DateTime),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignCenter},
	})
	return tw.Render()
}
