// Package tickerserver is the reference data server for ticker devices.
//
// It accepts TLS connections (optionally requiring a client certificate),
// reads length-prefixed CBOR requests and answers them through an
// interaction.Router. The built-in handlers are:
//
//	ping            {pong: true}
//	get_time        {server_time: "2006-01-02 15:04:05 MST"}
//	get_stock_data  {stock_data: {ticker, duration, data: [...]}}
//
// In echo mode every decodable request is answered with
// {status: "received", echo: <request>}, which is handy when bringing up a
// device against an unknown firmware build.
package tickerserver
