package readloop

import "testing"

func TestReadPostDataExactMatch(t *testing.T) {
	buf := []byte("a=1&b=2")
	body, end, result := ReadPostData(buf, 4096, 0, len(buf), []byte("7"))
	if result != PostBodyOK {
		t.Fatalf("result = %v, want PostBodyOK", result)
	}
	if string(body) != "a=1&b=2" {
		t.Errorf("body = %q", body)
	}
	if end != len(buf) {
		t.Errorf("end = %d, want %d", end, len(buf))
	}
}

func TestReadPostDataTooLarge(t *testing.T) {
	_, _, result := ReadPostData(nil, 16, 0, 0, []byte("1000"))
	if result != PostBodyTooLarge {
		t.Errorf("result = %v, want PostBodyTooLarge", result)
	}
}

func TestReadPostDataBadRequest(t *testing.T) {
	_, _, result := ReadPostData(nil, 4096, 0, 0, []byte("-5"))
	if result != PostBodyBadRequest {
		t.Errorf("result = %v, want PostBodyBadRequest", result)
	}
	_, _, result = ReadPostData(nil, 4096, 0, 0, []byte("garbage"))
	if result != PostBodyBadRequest {
		t.Errorf("result (garbage) = %v, want PostBodyBadRequest", result)
	}
}

func TestReadPostDataCrossesIntoNextRequest(t *testing.T) {
	buf := []byte("a=1&b=2GET /next")
	_, _, result := ReadPostData(buf, 4096, 0, len(buf), []byte("7"))
	if result != PostBodyNotImplemented {
		t.Errorf("result = %v, want PostBodyNotImplemented", result)
	}
}

func TestReadPostDataIncomplete(t *testing.T) {
	buf := []byte("a=1")
	_, _, result := ReadPostData(buf, 4096, 0, len(buf), []byte("7"))
	if result != PostBodyNotImplemented {
		t.Errorf("result = %v, want PostBodyNotImplemented", result)
	}
}
