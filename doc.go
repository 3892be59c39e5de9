// Package csvkit reads and writes delimited text files as ordered records,
// batches of records and Arrow tables.
//
// Reading:
//
//	for rec, err := range csvkit.Records(ctx, "data/cities.csv", csvkit.Options{}) {
//	    if err != nil {
//	        return err
//	    }
//	    city, _ := rec.Get("City")
//	}
//
// Every field read from a file passes through Convert, so "41" arrives as
// int64(41), "1.5" as float64(1.5) and "True" as true.
//
// Writing:
//
//	header := csvkit.Header{"id", "name"}
//	err := csvkit.CreateFile(ctx, "people.csv", header, csvkit.Options{})
//	err = csvkit.AppendRow(ctx, "people.csv", rec, header, csvkit.Options{})
//
// Options are passed by value to every operation. The zero Options reads and
// writes comma-separated UTF-8; LoadOptions and LoadOptionsFile fill Options
// from CSVKIT_* environment variables, dotenv files or YAML files.
//
// Errors returned by operations are *Error values; use errors.Is with
// ErrConfiguration, ErrIO or ErrFormat to select the category.
package csvkit
