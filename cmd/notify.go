/*
Copyright 2020 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"html"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/spf13/viper"

	"github.com/ademuri/workout-music-tools/internal/pipeline"
)

func notifySummary(to string, sum pipeline.RunSummary) error {
	subject, body := summaryEmail(sum)

	from := mail.NewEmail("workout-music-tools", viper.GetString("from"))
	message := mail.NewSingleEmail(from, subject, mail.NewEmail(to, to), subject, body)
	client := sendgrid.NewSendClient(viper.GetString("sendgrid_api_key"))
	resp, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("sending summary: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("sending summary: sendgrid returned %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func summaryEmail(sum pipeline.RunSummary) (subject string, body string) {
	subject = fmt.Sprintf("Workout playlist collection %s: %s", sum.StartedAt.Format("2006-01-02"), sum.Status())

	out := `
<html>
  <head>
<style>
td {
  padding: 0.1em 0.2em;
}
table, th, td {
  border: 1px solid black;
  border-collapse: collapse;
}
</style>
  </head>
  <body>
`
	out += fmt.Sprintf("<h2>Run %s</h2>\n", sum.RunID)
	out += "<table>\n"
	rows := [][2]string{
		{"Playlists discovered", fmt.Sprint(sum.Discovered)},
		{"Playlists loaded", fmt.Sprint(sum.Playlists)},
		{"Playlists failed", fmt.Sprint(len(sum.Failed))},
		{"Entries", fmt.Sprint(sum.Entries)},
		{"New tracks", fmt.Sprint(sum.TracksInserted)},
		{"Removals", fmt.Sprint(sum.Removed)},
		{"Quality issues", fmt.Sprint(sum.IssueTotal)},
	}
	for _, r := range rows {
		out += fmt.Sprintf("<tr><td>%s</td><td>%s</td></tr>\n", r[0], r[1])
	}
	out += "</table>\n"

	if len(sum.Failed) > 0 {
		out += "<h3>Failed pages</h3>\n<ul>\n"
		for _, f := range sum.Failed {
			out += fmt.Sprintf("<li>%s</li>\n", html.EscapeString(f.Error()))
		}
		out += "</ul>\n"
	}
	out += "  </body>\n</html>\n"
	return subject, out
}
