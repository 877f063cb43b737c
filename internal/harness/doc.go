// Package harness runs scripted board conversations against a fresh store.
//
// A scenario is a YAML file listing what nodes send, how the clock moves,
// and what the board must answer:
//
//	name: swap_meet
//	description: "Subscriber hears about a new post"
//	steps:
//	  - from: "!bbbb0002"
//	    send: "!subscribe all"
//	    expect:
//	      replies: ["Subscribed to all new posts and comments."]
//	  - advance: 1h
//	  - from: "!aaaa0001"
//	    name: Alice
//	    send: "!post Swap meet at noon"
//	    expect:
//	      outcome: ok
//	      notify:
//	        "!bbbb0002": "New post #1 from Alice: Swap meet at noon"
//	  - sweep: true
//	    expect:
//	      expired: 0
//	assertions:
//	  - type: stats
//	    stats: { active_posts: 1, total_subscriptions: 1 }
//
// Each step does exactly one of send, advance or sweep. Expectations are
// subset matches: fields left out are not checked. A step that sends text
// the board ignores produces no replies and its expected replies must be
// empty.
//
// Every run starts from an empty in-memory database with the clock at
// Epoch, so transcripts are deterministic and can be compared against golden
// files with RunWithGolden.
package harness
